package collab

import "testing"

func TestTransform_InsertShiftedByEarlierInsert(t *testing.T) {
	// "ABCD"：客户端基于版本 0 提交 delete(2,1)（删 "C"），
	// 服务端已先接受 insert(1,"X") → "AXBCD"，删除点右移到 3
	got := transformAgainst(Delete(2, 1), Insert(1, "X"))
	if got.Position != 3 || got.Length != 1 {
		t.Fatalf("transformed = %+v, want position=3 length=1", got)
	}
}

func TestTransform_InsertInsertTieBreak(t *testing.T) {
	// 同位置插入：服务端先落盘的赢，后来者右移
	got := transformAgainst(Insert(1, "Y"), Insert(1, "X"))
	if got.Position != 2 || got.Text != "Y" {
		t.Fatalf("transformed = %+v, want position=2 text=Y", got)
	}
}

func TestTransform_InsertBeforeAppliedInsertUnchanged(t *testing.T) {
	got := transformAgainst(Insert(0, "Y"), Insert(3, "X"))
	if got.Position != 0 {
		t.Fatalf("transformed = %+v, want position=0", got)
	}
}

func TestTransform_InsertAfterDeleteShiftsLeft(t *testing.T) {
	got := transformAgainst(Insert(4, "Z"), Delete(1, 2))
	if got.Position != 2 {
		t.Fatalf("transformed = %+v, want position=2", got)
	}
}

func TestTransform_InsertInsideDeleteCollapses(t *testing.T) {
	// 插入点落在已删区间内：收拢到删除起点，文本置空
	got := transformAgainst(Insert(2, "X"), Delete(1, 2))
	if got.Position != 1 || got.Text != "" {
		t.Fatalf("transformed = %+v, want position=1 empty text", got)
	}
}

func TestTransform_DeleteExpandsOverInsertedText(t *testing.T) {
	// 已应用的插入落在待删区间内部：删除扩张，覆盖插入的文本
	got := transformAgainst(Delete(1, 2), Insert(2, "X"))
	if got.Position != 1 || got.Length != 3 {
		t.Fatalf("transformed = %+v, want position=1 length=3", got)
	}
}

func TestTransform_DeleteAfterInsertShiftsRight(t *testing.T) {
	got := transformAgainst(Delete(2, 1), Insert(0, "XY"))
	if got.Position != 4 || got.Length != 1 {
		t.Fatalf("transformed = %+v, want position=4 length=1", got)
	}
}

func TestTransform_DeleteDeleteOverlap(t *testing.T) {
	// "ABCD"：已删 BC，待删 CD → 只剩 D 要删
	got := transformAgainst(Delete(2, 2), Delete(1, 2))
	if got.Position != 1 || got.Length != 1 {
		t.Fatalf("transformed = %+v, want position=1 length=1", got)
	}
}

func TestTransform_DeleteFullyCoveredCollapsesToZero(t *testing.T) {
	got := transformAgainst(Delete(2, 1), Delete(1, 3))
	if got.Length != 0 {
		t.Fatalf("transformed = %+v, want length=0", got)
	}
}

func TestTransform_DeleteBeforeAppliedDeleteUnchanged(t *testing.T) {
	got := transformAgainst(Delete(0, 1), Delete(2, 2))
	if got.Position != 0 || got.Length != 1 {
		t.Fatalf("transformed = %+v, want position=0 length=1", got)
	}
}

func TestTransform_RetainIdentity(t *testing.T) {
	r := transformAgainst(Retain(), Insert(0, "X"))
	if r.Kind != KindRetain {
		t.Fatalf("retain mutated: %+v", r)
	}
	op := transformAgainst(Insert(3, "A"), Retain())
	if op.Position != 3 || op.Text != "A" {
		t.Fatalf("op mutated by retain: %+v", op)
	}
}

// 菱形收敛：同一初始内容，两种接受顺序最终内容一致
// （同位置 insert/insert 对除外——那一对靠服务端总序定优先级，不走对称菱形）
func TestTransform_DiamondConvergence(t *testing.T) {
	cases := []struct {
		name string
		base string
		a, b Operation
	}{
		{"insert vs delete disjoint", "ABCD", Insert(1, "X"), Delete(2, 1)},
		{"insert inside delete", "ABCD", Insert(2, "X"), Delete(1, 2)},
		{"delete overlap", "ABCD", Delete(1, 2), Delete(2, 2)},
		{"delete contained", "ABCDE", Delete(2, 1), Delete(1, 3)},
		{"insert before delete", "ABCD", Insert(0, "XY"), Delete(2, 2)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// 顺序1：先 a 后 b'
			pt1 := NewPieceTable(tc.base)
			pt1.ApplyOperation(tc.a)
			pt1.ApplyOperation(transformAgainst(tc.b, tc.a))

			// 顺序2：先 b 后 a'
			pt2 := NewPieceTable(tc.base)
			pt2.ApplyOperation(tc.b)
			pt2.ApplyOperation(transformAgainst(tc.a, tc.b))

			if got1, got2 := pt1.String(), pt2.String(); got1 != got2 {
				t.Fatalf("diverged: order1=%q order2=%q", got1, got2)
			}
		})
	}
}

func TestTransformSince_AppliesInOrder(t *testing.T) {
	applied := []Operation{Insert(0, "X"), Delete(3, 1)}
	got := TransformSince(Insert(4, "Z"), applied)
	// +1（前方插入）再 -1（前方删除）
	if got.Position != 4 {
		t.Fatalf("transformed = %+v, want position=4", got)
	}
}
