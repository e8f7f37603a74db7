package collab

type bufferKind int

const (
	bufOriginal bufferKind = iota
	bufAdd
)

type piece struct {
	// 指针标签，表示从 original 还是 add 切片上偏移
	buf    bufferKind
	offset int
	length int
}

// PieceTable：文档内容缓冲区。
// original 只读，新增文本 append 到 add，分片列表描述逻辑顺序；
// Insert/Delete 只改分片，不搬动已有文本。
// 位置一律按 rune 计，越界位置做 clamp 而不是报错
// （变换后的操作允许贴在文档边界上）。
type PieceTable struct {
	original []rune
	add      []rune
	pieces   []piece
}

func NewPieceTable(initial string) *PieceTable {
	r := []rune(initial)
	pt := &PieceTable{original: r}
	if len(r) > 0 {
		pt.pieces = []piece{{buf: bufOriginal, offset: 0, length: len(r)}}
	}
	return pt
}

func (pt *PieceTable) Len() int {
	n := 0
	for _, p := range pt.pieces {
		n += p.length
	}
	return n
}

func (pt *PieceTable) String() string {
	res := make([]rune, 0, pt.Len())
	for _, p := range pt.pieces {
		switch p.buf {
		case bufOriginal:
			res = append(res, pt.original[p.offset:p.offset+p.length]...)
		case bufAdd:
			res = append(res, pt.add[p.offset:p.offset+p.length]...)
		}
	}
	return string(res)
}

// Insert 在 pos 处插入 text；pos 越界时 clamp 到 [0, Len()]。
func (pt *PieceTable) Insert(pos int, text string) {
	if text == "" {
		return
	}
	if pos < 0 {
		pos = 0
	}
	if n := pt.Len(); pos > n {
		pos = n
	}

	r := []rune(text)
	start := len(pt.add)
	pt.add = append(pt.add, r...)
	newPiece := piece{buf: bufAdd, offset: start, length: len(r)}

	idx, offset := pt.locate(pos)
	if idx >= len(pt.pieces) {
		pt.pieces = append(pt.pieces, newPiece)
		return
	}

	// 把命中的 piece 拆成 左 / 新 / 右 三段，长度为 0 的段丢掉
	cur := pt.pieces[idx]
	left := piece{buf: cur.buf, offset: cur.offset, length: offset}
	right := piece{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset}

	newPieces := make([]piece, 0, len(pt.pieces)+2)
	newPieces = append(newPieces, pt.pieces[:idx]...)
	if left.length > 0 {
		newPieces = append(newPieces, left)
	}
	newPieces = append(newPieces, newPiece)
	if right.length > 0 {
		newPieces = append(newPieces, right)
	}
	newPieces = append(newPieces, pt.pieces[idx+1:]...)
	pt.pieces = newPieces
}

// Delete 从 pos 起删 length 个 rune；区间越界时 clamp 到文档边界。
func (pt *PieceTable) Delete(pos, length int) {
	if length <= 0 {
		return
	}
	if pos < 0 {
		// 起点为负：只删落在文档内的部分
		length += pos
		pos = 0
		if length <= 0 {
			return
		}
	}
	if n := pt.Len(); pos+length > n {
		length = n - pos
		if length <= 0 {
			return
		}
	}

	remain := length
	idx, offset := pt.locate(pos)

	for remain > 0 && idx < len(pt.pieces) {
		cur := &pt.pieces[idx]
		can := cur.length - offset
		if can <= 0 {
			idx++
			offset = 0
			continue
		}

		take := remain
		if take > can {
			take = can
		}

		if offset == 0 && take == cur.length {
			// 整个 piece 都删掉；idx 不动（这个位置换成了下一个 piece）
			pt.pieces = append(pt.pieces[:idx], pt.pieces[idx+1:]...)
			offset = 0
		} else {
			// 只删中间一段：拆成 左 / 右 两段
			leftLen := offset
			rightLen := cur.length - offset - take

			newPieces := make([]piece, 0, len(pt.pieces)+1)
			newPieces = append(newPieces, pt.pieces[:idx]...)
			if leftLen > 0 {
				newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset, length: leftLen})
			}
			if rightLen > 0 {
				newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset + offset + take, length: rightLen})
			}
			newPieces = append(newPieces, pt.pieces[idx+1:]...)
			pt.pieces = newPieces

			if leftLen > 0 {
				idx++
			}
			offset = 0
		}

		remain -= take
	}
}

// ApplyOperation：把一条已变换的操作落到缓冲区上。
func (pt *PieceTable) ApplyOperation(op Operation) {
	switch op.Kind {
	case KindInsert:
		pt.Insert(op.Position, op.Text)
	case KindDelete:
		pt.Delete(op.Position, op.Length)
	case KindRetain:
		// 占位，不动内容
	}
}

// locate：根据逻辑位置 pos 找到对应的 piece 下标和片内偏移
func (pt *PieceTable) locate(pos int) (idx int, offset int) {
	cur := 0
	for i, p := range pt.pieces {
		if pos < cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(pt.pieces), 0
}
