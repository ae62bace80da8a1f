// Package trigger решает, запускает ли входящее событие pipeline.
//
// Evaluate — чистая функция: дескриптор события (kind, ref, sha)
// сверяется с триггерами спецификации (ветки/теги по глобам, schedule),
// попутно строится RunContext для ${{ run.* }}-выражений.
package trigger
