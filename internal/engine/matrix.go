package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
)

// MatrixCombo — одна комбинация значений осей matrix.
type MatrixCombo struct {
	// Key — уникальный в рамках run ключ instance.
	// Без matrix — имя job; с matrix — "build (linux, x86_64)".
	Key string

	// Values — значения осей (имя оси → значение). Nil без matrix.
	Values map[string]string
}

// ExpandMatrix разворачивает job в список комбинаций.
//
// Декартово произведение осей в лексикографическом порядке имён осей —
// порядок детерминирован, чтобы ключи instances были стабильны между
// запусками. Job без matrix даёт ровно одну комбинацию.
//
// Пустой набор осей, пустая ось и повторяющееся значение оси —
// DefinitionError: молчаливое поведение здесь хуже явного отказа.
func ExpandMatrix(jobName string, def *domain.JobDef) ([]MatrixCombo, error) {
	// "matrix: {}" декодируется в не-nil карту без осей — это не
	// "нет matrix", а ошибка определения
	if def.Matrix != nil && len(def.Matrix) == 0 {
		return nil, NewValidationError(jobName, "matrix",
			"matrix declares no axes", ErrEmptyMatrix)
	}
	if !def.HasMatrix() {
		return []MatrixCombo{{Key: jobName}}, nil
	}

	// Сортируем имена осей для детерминированного порядка
	axes := make([]string, 0, len(def.Matrix))
	for axis := range def.Matrix {
		axes = append(axes, axis)
	}
	sort.Strings(axes)

	// Валидируем оси
	for _, axis := range axes {
		values := def.Matrix[axis]
		if len(values) == 0 {
			return nil, NewValidationError(jobName, "matrix",
				fmt.Sprintf("matrix axis %q has no values", axis), ErrEmptyMatrixAxis)
		}
		seen := make(map[string]bool, len(values))
		for _, v := range values {
			if seen[v] {
				return nil, NewValidationError(jobName, "matrix",
					fmt.Sprintf("matrix axis %q has duplicate value %q", axis, v), ErrDuplicateMatrixValue)
			}
			seen[v] = true
		}
	}

	// Декартово произведение
	combos := []map[string]string{{}}
	for _, axis := range axes {
		next := make([]map[string]string, 0, len(combos)*len(def.Matrix[axis]))
		for _, combo := range combos {
			for _, value := range def.Matrix[axis] {
				expanded := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					expanded[k] = v
				}
				expanded[axis] = value
				next = append(next, expanded)
			}
		}
		combos = next
	}

	result := make([]MatrixCombo, len(combos))
	for i, values := range combos {
		result[i] = MatrixCombo{
			Key:    comboKey(jobName, axes, values),
			Values: values,
		}
	}
	return result, nil
}

// comboKey формирует ключ instance: "build (linux, x86_64)".
// Значения — в порядке отсортированных имён осей.
func comboKey(jobName string, axes []string, values map[string]string) string {
	parts := make([]string, len(axes))
	for i, axis := range axes {
		parts[i] = values[axis]
	}
	return fmt.Sprintf("%s (%s)", jobName, strings.Join(parts, ", "))
}
