package httpapi

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yuqie6/VirtualSelf/internal/ai"
	"github.com/yuqie6/VirtualSelf/internal/bootstrap"
	"github.com/yuqie6/VirtualSelf/internal/dto"
	"github.com/yuqie6/VirtualSelf/internal/eventbus"
	"github.com/yuqie6/VirtualSelf/internal/pkg/buildinfo"
	"github.com/yuqie6/VirtualSelf/internal/schema"
	"github.com/yuqie6/VirtualSelf/internal/service"
)

type apiServer struct {
	core      *bootstrap.Core
	svc       *service.CompanionService
	hub       *eventbus.Hub
	startTime time.Time
}

func newAPI(core *bootstrap.Core) *apiServer {
	return &apiServer{
		core:      core,
		svc:       core.Services.Companion,
		hub:       core.Hub,
		startTime: time.Now(),
	}
}

func (a *apiServer) mountRoutes(r chi.Router) {
	r.Get("/status", a.getStatus)
	r.Get("/events", a.handleSSE)

	r.Post("/onboard", a.onboard)
	r.Get("/questions", a.listQuestions)
	r.Post("/questions/{id}/answer", a.answerQuestion)

	r.Get("/entries", a.listEntries)
	r.Post("/entries", a.ingest)
	r.Delete("/entries/{id}", a.deleteEntry)
	r.Get("/milestones", a.listMilestones)

	r.Get("/profile", a.getProfile)
	r.Post("/profile/avatar", a.refreshAvatar)

	r.Get("/plan", a.getPlan)
	r.Post("/plan", a.generatePlan)
	r.Get("/tasks", a.listTasks)
	r.Post("/tasks/{id}/toggle", a.toggleTask)

	r.Post("/checkin", a.checkIn)
	r.Post("/weekly", a.weeklySummary)
	r.Post("/speech", a.speak)
	r.Post("/talk", a.talk)
}

func (a *apiServer) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := dto.StatusDTO{
		App: dto.AppStatusDTO{
			Name:      a.core.Cfg.App.Name,
			Version:   buildinfo.String(),
			StartedAt: a.startTime.Format(time.RFC3339),
			UptimeSec: int64(time.Since(a.startTime).Seconds()),
		},
		Storage: dto.StorageStatusDTO{DBPath: a.core.Cfg.Storage.DBPath},
		AI: dto.AIStatusDTO{
			Configured: a.core.Clients.Credentials != nil && a.core.Clients.Credentials.IsConfigured(),
		},
		Busy: make(map[string]bool),
	}
	if db := a.core.DB; db != nil {
		out.App.SafeMode = db.SafeMode
		out.Storage.SchemaVersion = db.SchemaVersion
		out.Storage.SafeModeReason = db.MigrationError
	}
	if mem := a.core.Services.Memory; mem != nil {
		out.AI.MemoryEnabled = true
		out.AI.MemoryEntries = mem.Count()
	}
	for _, act := range []service.Action{service.ActionOnboarding, service.ActionLibrary, service.ActionPlan, service.ActionCheckIn, service.ActionSpeech} {
		out.Busy[string(act)] = a.svc.Busy(act)
	}

	library, err := a.svc.Library(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	tasks, err := a.svc.Tasks(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	profile, err := a.svc.Profile(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	plan, err := a.svc.Plan(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out.Counts = dto.CountsDTO{
		Entries:    len(library),
		Tasks:      len(tasks),
		HasProfile: profile != nil,
		HasPlan:    plan != nil,
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiServer) onboard(w http.ResponseWriter, r *http.Request) {
	var req schema.OnboardingData
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	res, err := a.svc.Onboard(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := dto.OnboardResponseDTO{Profile: res.Profile, Entries: res.Entries}
	if res.AvatarErr != nil {
		out.AvatarError = service.UserMessage(res.AvatarErr)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiServer) listQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schema.GuidedQuestions)
}

func (a *apiServer) answerQuestion(w http.ResponseWriter, r *http.Request) {
	var req dto.AnswerRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	entry, err := a.svc.AnswerGuidedQuestion(r.Context(), chi.URLParam(r, "id"), req.Answer)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *apiServer) listEntries(w http.ResponseWriter, r *http.Request) {
	library, err := a.svc.Library(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	category := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("category")))
	if category == "" {
		writeJSON(w, http.StatusOK, library)
		return
	}
	out := make([]schema.ExperienceEntry, 0)
	for _, e := range library {
		if string(e.Category) == category {
			out = append(out, e)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiServer) ingest(w http.ResponseWriter, r *http.Request) {
	var req dto.IngestRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	res, err := a.svc.IngestRawInput(r.Context(), req.Text)
	if res == nil {
		writeServiceError(w, err)
		return
	}
	out := dto.IngestResponseDTO{Entries: res.Entries, Profile: res.Profile, Speech: res.Speech}
	if err != nil {
		out.ProfileError = service.UserMessage(err)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiServer) deleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiServer) listMilestones(w http.ResponseWriter, r *http.Request) {
	ms, err := a.svc.Milestones(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (a *apiServer) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Profile(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if p == nil {
		writeServiceError(w, service.ErrNoProfile)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *apiServer) refreshAvatar(w http.ResponseWriter, r *http.Request) {
	var req dto.AvatarRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	p, err := a.svc.RefreshAvatar(r.Context(), req.OOTD)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *apiServer) getPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := a.svc.Plan(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.PlanResponseDTO{Plan: plan})
}

func (a *apiServer) generatePlan(w http.ResponseWriter, r *http.Request) {
	plan, tasks, err := a.svc.GeneratePlan(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.PlanResponseDTO{Plan: plan, Tasks: tasks})
}

func (a *apiServer) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.svc.Tasks(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	g := service.GroupTasks(tasks)
	writeJSON(w, http.StatusOK, dto.TaskGroupsDTO{
		Today:  a.svc.Today(),
		Daily:  nonNil(g.Daily),
		Weekly: nonNil(g.Weekly),
		Once:   nonNil(g.Once),
	})
}

func (a *apiServer) toggleTask(w http.ResponseWriter, r *http.Request) {
	task, err := a.svc.ToggleTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *apiServer) checkIn(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckInRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	res, err := a.svc.CheckIn(r.Context(), req.Speak)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := dto.CheckInResponseDTO{Feedback: res.Feedback}
	if len(res.Audio) > 0 {
		out.AudioWAV = base64.StdEncoding.EncodeToString(ai.WrapPCM16(res.Audio, ai.SpeechSampleRate))
	}
	if res.AudioErr != nil {
		out.AudioError = service.UserMessage(res.AudioErr)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiServer) weeklySummary(w http.ResponseWriter, r *http.Request) {
	s, err := a.svc.WeeklySummary(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *apiServer) speak(w http.ResponseWriter, r *http.Request) {
	var req dto.SpeechRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	audio, err := a.svc.Speak(r.Context(), req.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ai.WrapPCM16(audio, ai.SpeechSampleRate))
}

func (a *apiServer) talk(w http.ResponseWriter, r *http.Request) {
	var req dto.TalkRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	reply, err := a.svc.Talk(r.Context(), req.Message)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.TalkResponseDTO{Reply: reply})
}

func nonNil(tasks []schema.ActionTask) []schema.ActionTask {
	if tasks == nil {
		return []schema.ActionTask{}
	}
	return tasks
}
