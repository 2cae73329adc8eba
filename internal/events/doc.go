// Package events реализует fan-out публикацию событий стадий.
//
// Driver публикует события в Broadcaster, не зная, сколько слушателей
// подключено. Слушатели (SSE, WebSocket, AMQP relay) получают
// Subscription и читают из Events() до Close.
//
// Политика доставки: ограниченный буфер на подписчика, при переполнении
// событие для этого подписчика отбрасывается. Медленный подписчик
// не может замедлить Driver.
package events
