package reminder

import "fmt"

// ParseError means the text matched no supported grammar or failed numeric
// bounds. It is recoverable and surfaced verbatim to the user; it is never
// logged as a system fault.
type ParseError struct {
	Hint string
}

func (e *ParseError) Error() string { return e.Hint }

// IndexError means an out-of-range cancel index. The message states the
// valid range.
type IndexError struct {
	Count int
}

func (e *IndexError) Error() string {
	if e.Count == 0 {
		return "❌ 目前沒有定時提醒可以取消"
	}
	return fmt.Sprintf("❌ 編號不正確，請輸入 1 到 %d 之間的數字", e.Count)
}
