package models

import "fmt"

// DedupKey строит ключ идемпотентности доставки из (event, channel, recipient).
//
// Ключ передается провайдеру канала: повторный вызов Send с тем же ключом
// не должен привести к дублированию сообщения.
func DedupKey(eventID int64, channel, recipient string) string {
	return fmt.Sprintf("evt:%d:%s:%s", eventID, channel, recipient)
}
