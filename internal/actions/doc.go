// Package actions выполняет отдельные шаги jobs.
//
// Два вида шагов:
//   - run — shell-команда (ShellRunner); outputs публикуются
//     строками name=value в файл из CONVEYOR_OUTPUT
//   - uses — внешний action (ActionRunner); вызывается через
//     action-сервис, возвращает exit status и outputs
//
// Runner'ы получают уже отрендеренные значения: подстановкой
// ${{ }}-выражений занимается worker.
package actions
