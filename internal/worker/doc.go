// Package worker проводит runs через каталог стадий.
//
// # Обзор
//
// Driver — единственный писатель состояния своего run. Для каждого
// run Orchestrator запускает Driver.Run в отдельной горутине; много
// runs выполняются параллельно и независимо публикуют события
// в общий Broadcaster.
//
// # Машина состояний
//
//	not-started → running-stage[0] → ... → running-stage[N-1] → finished
//
// Переход через стадию i:
//
//  1. RunStore.AppendStage(i) — запись в статусе running
//  2. Publish "Starting i"
//  3. Executor.Execute — имитация работы, без удержания общих блокировок
//  4. RunStore.CompleteStage — запись в статусе done
//  5. Publish "Finished i"
//
// После последней стадии: RunStore.Finish (success) и событие
// pipeline_done с одним только run id.
//
// # Executor
//
// Интерфейс имитации работы стадии:
//
//	type Executor interface {
//	    Execute(ctx context.Context, stage string) error
//	}
//
// DelayExecutor — фиксированная задержка с поддержкой отмены через ctx.
// Другие реализации можно подставить через Config.Executor.
//
// # Ошибки
//
// Штатная работа не падает никогда. Если run исчез из хранилища,
// Driver возвращает ErrRunVanished и больше ничего не публикует.
// Отмена ctx или ошибка Executor переводят run в cancelled, также
// без дальнейших событий.
package worker
