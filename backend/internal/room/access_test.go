package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/artpromedia/aivo-platform-sub008/backend/internal/cache"
)

type fakeRepo struct {
	enrolled map[string]bool
	owns     map[string]bool
	docs     map[string]bool
	tenants  map[string]bool
	err      error
}

func (f *fakeRepo) IsEnrolled(ctx context.Context, userID uint64, classID string) (bool, error) {
	return f.enrolled[classID], f.err
}
func (f *fakeRepo) OwnsSession(ctx context.Context, userID uint64, sessionID string) (bool, error) {
	return f.owns[sessionID], f.err
}
func (f *fakeRepo) HasDocumentAccess(ctx context.Context, userID uint64, docID string) (bool, error) {
	return f.docs[docID], f.err
}
func (f *fakeRepo) InTenant(ctx context.Context, userID uint64, tenantID string) (bool, error) {
	return f.tenants[tenantID], f.err
}

func newAccessService(repo MembershipRepo) *Service {
	clk := clock.NewMock()
	return NewService(cache.NewMemoryStore(clk), repo, clk, Config{
		TTL:                 10 * time.Minute,
		MaxMembers:          200,
		MessageHistoryLimit: 100,
	})
}

func TestCanJoinRoom_Dispatch(t *testing.T) {
	repo := &fakeRepo{
		enrolled: map[string]bool{"class-1": true},
		owns:     map[string]bool{"sess-1": true},
		docs:     map[string]bool{"doc-1": true},
		tenants:  map[string]bool{"tenant-1": true},
	}
	svc := newAccessService(repo)
	ctx := context.Background()

	cases := []struct {
		name     string
		roomID   string
		tenantID string
		roomType RoomType
		want     bool
	}{
		{"class enrolled", "class-1", "tenant-1", TypeClass, true},
		{"class not enrolled", "class-2", "tenant-1", TypeClass, false},
		{"session owner", "sess-1", "tenant-1", TypeSession, true},
		{"session not owner", "sess-2", "tenant-1", TypeSession, false},
		{"document acl", "doc-1", "tenant-1", TypeDocument, true},
		{"document no acl", "doc-2", "tenant-1", TypeDocument, false},
		{"planning same tenant", "plan-1", "tenant-1", TypePlanning, true},
		{"planning other tenant", "plan-1", "tenant-2", TypePlanning, false},
		{"analytics same tenant", "dash-1", "tenant-1", TypeAnalytics, true},
		{"analytics other tenant", "dash-1", "tenant-2", TypeAnalytics, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.CanJoinRoom(ctx, 1, tc.tenantID, tc.roomID, tc.roomType)
			if err != nil {
				t.Fatalf("CanJoinRoom: %v", err)
			}
			if got != tc.want {
				t.Fatalf("CanJoinRoom = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanJoinRoom_UnknownTypeErrors(t *testing.T) {
	svc := newAccessService(&fakeRepo{})
	ok, err := svc.CanJoinRoom(context.Background(), 1, "tenant-1", "room-1", RoomType("lobby"))
	if err == nil {
		t.Fatal("unknown room type must not default to a decision")
	}
	if ok {
		t.Fatal("unknown room type must never grant access")
	}
}

func TestCanJoinRoom_RepoErrorPropagates(t *testing.T) {
	repoErr := errors.New("mysql gone")
	svc := newAccessService(&fakeRepo{err: repoErr})
	_, err := svc.CanJoinRoom(context.Background(), 1, "tenant-1", "class-1", TypeClass)
	if !errors.Is(err, repoErr) {
		t.Fatalf("err = %v, want repo error to propagate", err)
	}
}
