package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/pipesim/internal/domain"
)

// maxBodyBytes — ограничение на тело запроса запуска.
const maxBodyBytes = 1 << 20

// Health возвращает статус сервиса.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ListPipelines возвращает список всех runs.
// GET /api/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.ListRuns(r.Context())
	if HandleRepoError(w, h.logger, err) {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	JSON(w, http.StatusOK, result)
}

// GetPipeline возвращает run по ID.
// GET /api/pipelines/{id}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	run, err := h.runs.GetRun(r.Context(), id)
	if HandleRepoError(w, h.logger, err) {
		return
	}

	JSON(w, http.StatusOK, RunFromDomain(*run))
}

// RunPipeline запускает новый run и сразу возвращает его ID.
// POST /api/pipelines/run
//
// Тело необязательно и может быть любым JSON. Оно сохраняется в run
// как payload и симуляцией не используется. Driver запускается только
// после отправки ответа, поэтому клиент получает ID раньше событий run.
func (h *Handler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(w, r)
	if err != nil {
		BadRequest(w, "request body must be valid JSON")
		return
	}

	pending, err := h.runs.CreateRun(r.Context(), payload)
	if HandleRepoError(w, h.logger, err) {
		return
	}
	defer pending.Launch()

	JSON(w, http.StatusAccepted, StartRunResponse{ID: pending.ID})
	if err := http.NewResponseController(w).Flush(); err != nil {
		h.logger.Debug("flush run response", "error", err)
	}
}

// EmitTest публикует диагностическое событие.
// GET /api/emit_test
func (h *Handler) EmitTest(w http.ResponseWriter, r *http.Request) {
	h.bus.Publish(domain.ManualEvent())
	JSON(w, http.StatusOK, OKResponse{OK: true})
}

// bodyKey — ключ payload для тела, которое не является JSON-объектом.
const bodyKey = "body"

// decodePayload читает необязательное JSON-тело запроса.
//
// Объект становится payload как есть, пустое тело и null дают nil,
// любое другое значение сохраняется под ключом "body".
func decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, err
	}

	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	default:
		return map[string]any{bodyKey: v}, nil
	}
}
