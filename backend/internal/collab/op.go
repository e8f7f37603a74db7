package collab

import "unicode/utf8"

type Kind string

const (
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
	KindRetain Kind = "retain"
)

// Operation 是带标签的变体：insert{position,text} / delete{position,length} / retain。
// 创建后不可变；变换永远返回新值，不原地改。
// Position/Length 按 rune 计（和内容缓冲区保持一致，中文等多字节字符不会错位）。
type Operation struct {
	Kind     Kind   `json:"kind"`
	Position int    `json:"position"`
	Text     string `json:"text,omitempty"`
	Length   int    `json:"length,omitempty"`
}

func Insert(position int, text string) Operation {
	return Operation{Kind: KindInsert, Position: position, Text: text}
}

func Delete(position, length int) Operation {
	return Operation{Kind: KindDelete, Position: position, Length: length}
}

func Retain() Operation {
	return Operation{Kind: KindRetain}
}

// textLen：insert 文本的 rune 长度
func (op Operation) textLen() int {
	return utf8.RuneCountInString(op.Text)
}

// span：这次操作影响的区间长度
func (op Operation) span() int {
	switch op.Kind {
	case KindInsert:
		return op.textLen()
	case KindDelete:
		return op.Length
	default:
		return 0
	}
}
