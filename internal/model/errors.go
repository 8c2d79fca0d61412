package model

import "errors"

// Source — объявленный источник сырой записи.
type Source string

const (
	SourceRUZ     Source = "ruz"
	SourceErudite Source = "erudite"
)

// MalformedRecordError — в сырой записи отсутствует обязательное поле.
// Такое занятие пропускается, комната и батч продолжают обработку.
type MalformedRecordError struct {
	Source Source
	Field  string
}

func (e *MalformedRecordError) Error() string {
	return "malformed " + string(e.Source) + " record: missing or invalid field " + e.Field
}

// IsMalformed проверяет, что ошибка вызвана некорректной сырой записью.
func IsMalformed(err error) bool {
	var target *MalformedRecordError
	return errors.As(err, &target)
}
