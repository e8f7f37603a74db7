package cache

import (
	"fmt"
	"strconv"
)

// 键语义：
// - roomMembersKey(roomID):   房间成员表（Hash<socketID -> RoomMember JSON>）
// - roomStateKey(roomID):     房间级状态（String，RoomState JSON）
// - roomMessagesKey(roomID):  房间消息环（List，最新的在头部，LTRIM 截断）
// - docStateKey(docID):       文档状态（String，DocumentState JSON）
// - lockKey(docID, elemID):   文档/元素排他锁（String，DocumentLock JSON，带 TTL）
// - presenceKey(userID):      用户在线状态（String，PresenceRecord JSON，带 TTL）
//
// 使用 {…} hash tag 确保同一房间/文档的相关 Key 落在同一 Slot

const (
	keyRoomMembersFmt  = "room:members:{%s}"
	keyRoomStateFmt    = "room:state:{%s}"
	keyRoomMessagesFmt = "room:messages:{%s}"
	keyDocStateFmt     = "doc:state:{%s}"
	keyDocLockFmt      = "lock:{%s}"
	keyElemLockFmt     = "lock:{%s}:%s"
	keyPresenceFmt     = "presence:user:{%s}"
)

func RoomMembersKey(roomID string) string  { return fmt.Sprintf(keyRoomMembersFmt, roomID) }
func RoomStateKey(roomID string) string    { return fmt.Sprintf(keyRoomStateFmt, roomID) }
func RoomMessagesKey(roomID string) string { return fmt.Sprintf(keyRoomMessagesFmt, roomID) }
func DocStateKey(docID string) string      { return fmt.Sprintf(keyDocStateFmt, docID) }

// LockKey：elementID 为空表示整篇文档的锁
func LockKey(docID, elementID string) string {
	if elementID == "" {
		return fmt.Sprintf(keyDocLockFmt, docID)
	}
	return fmt.Sprintf(keyElemLockFmt, docID, elementID)
}

func PresenceKey(userID uint64) string {
	return fmt.Sprintf(keyPresenceFmt, strconv.FormatUint(userID, 10))
}
