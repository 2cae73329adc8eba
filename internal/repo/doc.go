// Package repo хранит состояние runs.
//
// RunRepo — in-memory хранилище с внутренней синхронизацией.
// Создаётся один раз при старте процесса и передаётся в Orchestrator
// и Driver. Персистентности нет: состояние живёт до завершения процесса.
package repo
