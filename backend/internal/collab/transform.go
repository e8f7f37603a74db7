package collab

// transformAgainst：OT 菱形的一条边。
// applied 是服务端已接受的操作（优先级高），incoming 是客户端基于旧版本提交的操作；
// 返回等价于“这次编辑发生在 applied 之后”的 incoming 副本。
//
// 成对规则（位置相同的 insert 由服务端顺序赢得优先；所有结果都 clamp，
// 位置不会为负，删除长度不会越界）：
//   - insert vs insert：applied 在前（含同位置）时 incoming 右移
//   - insert vs delete：incoming 的插入点落在已删区间内时收拢到删除起点且文本置空，
//     与下面的删除扩张规则互为菱形的两边——两侧都不保留这段文本，内容才能收敛
//   - delete vs insert：applied 插进被删区间内部时删除扩张，把插入的文本一并覆盖
//   - delete vs delete：重叠部分只删一次，长度减去重叠量
//   - retain：恒等占位，永不变形
func transformAgainst(incoming, applied Operation) Operation {
	if incoming.Kind == KindRetain || applied.Kind == KindRetain {
		return incoming
	}

	switch incoming.Kind {
	case KindInsert:
		switch applied.Kind {
		case KindInsert:
			// 同位置插入：服务端先落盘的赢得位置优先，后来者右移
			if applied.Position <= incoming.Position {
				incoming.Position += applied.textLen()
			}
		case KindDelete:
			end := applied.Position + applied.Length
			switch {
			case incoming.Position <= applied.Position:
				// 插入点在删除区间之前，不动
			case incoming.Position >= end:
				incoming.Position -= applied.Length
			default:
				// 插入点落在已被删掉的区间里：收拢到删除起点，文本置空
				//（对侧的删除会扩张覆盖这段文本，两边都不留它）
				incoming.Position = applied.Position
				incoming.Text = ""
			}
		}
	case KindDelete:
		switch applied.Kind {
		case KindInsert:
			end := incoming.Position + incoming.Length
			switch {
			case applied.Position <= incoming.Position:
				incoming.Position += applied.textLen()
			case applied.Position >= end:
				// 插入在删除区间之后，不动
			default:
				// 插入落在待删区间内部：删除扩张，把新文本一并覆盖，
				// 两侧收敛到同一内容
				incoming.Length += applied.textLen()
			}
		case KindDelete:
			aEnd := applied.Position + applied.Length
			iEnd := incoming.Position + incoming.Length
			switch {
			case aEnd <= incoming.Position:
				incoming.Position -= applied.Length
			case iEnd <= applied.Position:
				// 待删区间整体在前，不动
			default:
				// 区间重叠：重叠部分已经被删过了，只剩差集
				overlap := min(aEnd, iEnd) - max(applied.Position, incoming.Position)
				incoming.Length -= overlap
				if incoming.Length < 0 {
					incoming.Length = 0
				}
				incoming.Position = min(applied.Position, incoming.Position)
			}
		}
	}

	if incoming.Position < 0 {
		incoming.Position = 0
	}
	return incoming
}

// TransformSince：把 op 依次变换过 applied 序列（服务端接受顺序）。
func TransformSince(op Operation, applied []Operation) Operation {
	for _, a := range applied {
		op = transformAgainst(op, a)
	}
	return op
}
