// Package orchestrator управляет запуском runs.
//
// Orchestrator отвечает за:
//   - Создание run в хранилище
//   - Запуск Driver в отдельной горутине (fire-and-forget для вызывающего);
//     CreateRun придерживает driver до Launch, чтобы ID ушёл клиенту раньше событий
//   - Учёт работающих driver'ов для drain/cancel при остановке
//   - Выдачу снимков runs (ListRuns, GetRun)
package orchestrator
