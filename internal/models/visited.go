package models

import "encoding/json"

// VisitedSet хранит id посещенных сегментов в порядке посещения, без повторов.
// В JSON сериализуется как массив.
type VisitedSet struct {
	order []string
	index map[string]struct{}
}

// NewVisitedSet создает множество из переданных id.
func NewVisitedSet(ids ...string) VisitedSet {
	var v VisitedSet
	for _, id := range ids {
		v.Add(id)
	}
	return v
}

// Add добавляет id. Повторное добавление игнорируется.
func (v *VisitedSet) Add(id string) bool {
	if v.index == nil {
		v.index = make(map[string]struct{})
	}
	if _, ok := v.index[id]; ok {
		return false
	}
	v.index[id] = struct{}{}
	v.order = append(v.order, id)
	return true
}

// Has проверяет, был ли сегмент посещен.
func (v VisitedSet) Has(id string) bool {
	_, ok := v.index[id]
	return ok
}

// Len возвращает количество посещенных сегментов.
func (v VisitedSet) Len() int {
	return len(v.order)
}

// IDs возвращает копию id в порядке посещения.
func (v VisitedSet) IDs() []string {
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// Last возвращает последние n id.
func (v VisitedSet) Last(n int) []string {
	if n <= 0 {
		return nil
	}
	if n > len(v.order) {
		n = len(v.order)
	}
	out := make([]string, n)
	copy(out, v.order[len(v.order)-n:])
	return out
}

func (v VisitedSet) MarshalJSON() ([]byte, error) {
	if v.order == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.order)
}

func (v *VisitedSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*v = NewVisitedSet(ids...)
	return nil
}
