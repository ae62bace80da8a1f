// Package secrets — read-only источник секретов для worker'а.
//
// Секреты существуют только на стороне worker'а: оркестратор никогда не
// кладёт их в payload, репозитории никогда не пишут их в БД, и ни один
// компонент не логирует их значения.
package secrets

import (
	"os"
	"strings"
)

// EnvPrefix — префикс переменных окружения, из которых worker читает
// секреты: CONVEYOR_SECRET_DEPLOY_KEY становится secrets.DEPLOY_KEY.
const EnvPrefix = "CONVEYOR_SECRET_"

// Store — неизменяемый набор секретов, снятый один раз при старте.
type Store struct {
	values map[string]string
}

// FromEnv собирает Store из переменных окружения с префиксом EnvPrefix.
func FromEnv() *Store {
	values := make(map[string]string)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		values[strings.TrimPrefix(name, EnvPrefix)] = value
	}
	return &Store{values: values}
}

// NewStore создаёт Store из готовой map. Используется в тестах.
func NewStore(values map[string]string) *Store {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Store{values: copied}
}

// Lookup возвращает секрет по имени.
func (s *Store) Lookup(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Len возвращает количество загруженных секретов.
// Для стартового лога worker'а — имена и значения не логируются.
func (s *Store) Len() int {
	return len(s.values)
}
