package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/agent"
	"github.com/r8kyu/scribe-project/internal/document"
	"github.com/r8kyu/scribe-project/internal/events"
	"github.com/r8kyu/scribe-project/internal/model"
	"github.com/r8kyu/scribe-project/internal/storage"
	"github.com/r8kyu/scribe-project/internal/textgen"
)

const supervisorAgentName = "supervisor"

const apologyMessage = "Sorry, something went wrong while processing your request. Please try again."

// Config bounds one turn's execution.
type Config struct {
	// MaxParallel caps simultaneously executing tasks within a turn.
	MaxParallel int
	// BatchTimeout bounds a whole turn's task batch.
	BatchTimeout time.Duration
	// MaxTurns caps user/assistant exchanges per session.
	MaxTurns int
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 3
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 5 * time.Minute
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = 50
	}
	return c
}

// Deps carries the supervisor's collaborators. Events may be nil.
type Deps struct {
	Agents    map[string]*agent.Agent
	Store     storage.ConversationStore
	Documents *document.Manager
	Generator textgen.Generator
	Events    *events.Publisher
}

// Turn is the outcome of processing one user message.
type Turn struct {
	SessionID   string            `json:"session_id"`
	Message     string            `json:"message"`
	TodoTasks   []*model.TodoTask `json:"todo_tasks,omitempty"`
	Analysis    Analysis          `json:"intent_analysis"`
	References  []model.Reference `json:"references,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Success     bool              `json:"success"`
}

// Supervisor turns user messages into capability tasks and aggregated
// replies. It decomposes each message by intent, runs the resulting tasks
// concurrently under a parallelism cap and a batch timeout, and persists
// exactly two conversational records per turn. It is the only component
// that mutates TodoTask state.
type Supervisor struct {
	logger    *zap.Logger
	cfg       Config
	agents    map[string]*agent.Agent
	store     storage.ConversationStore
	documents *document.Manager
	gen       textgen.Generator
	events    *events.Publisher
}

// New creates a supervisor over the given capability agents.
func New(deps Deps, cfg Config, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		logger:    logger.Named("supervisor"),
		cfg:       cfg.withDefaults(),
		agents:    deps.Agents,
		store:     deps.Store,
		documents: deps.Documents,
		gen:       deps.Generator,
		events:    deps.Events,
	}
}

// ProcessUserMessage runs one conversation turn: persist the user message,
// classify it, decompose it into tasks, execute the batch, and persist the
// aggregated assistant reply. Classification, decomposition, and individual
// task failures degrade into the reply; only a persistence or composition
// failure fails the turn, and even then an apology record is written so
// the conversation stays consistent.
func (s *Supervisor) ProcessUserMessage(ctx context.Context, sessionID, userMessage, userID, documentID string) (*Turn, error) {
	session, err := s.ensureSession(ctx, sessionID, userID, documentID)
	if err != nil {
		return s.failTurn(ctx, sessionID, err)
	}
	if documentID == "" {
		documentID = session.DocumentID
	}

	count, err := s.store.CountMessages(ctx, session.ID)
	if err != nil {
		return s.failTurn(ctx, session.ID, fmt.Errorf("failed to count messages: %w", err))
	}
	if count/2 >= s.cfg.MaxTurns {
		return s.capTurn(ctx, session, userMessage)
	}

	if err := s.persistMessage(ctx, session.ID, model.ChatRoleUser, userMessage, nil, nil); err != nil {
		return s.failTurn(ctx, session.ID, fmt.Errorf("failed to persist user message: %w", err))
	}
	if count == 0 && session.Title == model.DefaultSessionTitle {
		if err := s.store.UpdateSessionTitle(ctx, session.ID, sessionTitle(userMessage)); err != nil {
			s.logger.Warn("Failed to update session title",
				zap.String("session_id", session.ID),
				zap.Error(err))
		}
	}

	analysis := s.classifyIntent(ctx, userMessage, documentID)
	s.logger.Info("Message analyzed",
		zap.String("session_id", session.ID),
		zap.String("intent", analysis.MainIntent),
		zap.String("urgency", analysis.Urgency))

	todos := s.decompose(ctx, analysis, documentID)
	s.dispatch(ctx, todos)

	message, references, suggestions := buildReply(todos)

	todoJSON, err := json.Marshal(todos)
	if err != nil {
		return s.failTurn(ctx, session.ID, fmt.Errorf("failed to marshal todo tasks: %w", err))
	}
	var refJSON json.RawMessage
	if len(references) > 0 {
		refJSON, err = json.Marshal(references)
		if err != nil {
			return s.failTurn(ctx, session.ID, fmt.Errorf("failed to marshal references: %w", err))
		}
	}
	if err := s.persistMessage(ctx, session.ID, model.ChatRoleAssistant, message, todoJSON, refJSON); err != nil {
		return s.failTurn(ctx, session.ID, fmt.Errorf("failed to persist assistant message: %w", err))
	}

	completed, failed := outcomeCounts(todos)
	s.events.TurnCompleted(session.ID, completed, failed)
	s.logger.Info("Turn completed",
		zap.String("session_id", session.ID),
		zap.Int("completed", completed),
		zap.Int("failed", failed))

	return &Turn{
		SessionID:   session.ID,
		Message:     message,
		TodoTasks:   todos,
		Analysis:    analysis,
		References:  references,
		Suggestions: suggestions,
		Success:     true,
	}, nil
}

// ensureSession loads the session, creating it when absent. A caller-chosen
// id is honored so clients may pre-generate session ids.
func (s *Supervisor) ensureSession(ctx context.Context, sessionID, userID, documentID string) (*model.ChatSession, error) {
	if sessionID != "" {
		session, err := s.store.Session(ctx, sessionID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
	}

	now := time.Now()
	session := &model.ChatSession{
		ID:         sessionID,
		UserID:     userID,
		DocumentID: documentID,
		Title:      model.DefaultSessionTitle,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info("Session created",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID))
	return session, nil
}

// capTurn records an over-limit exchange without dispatching any work.
func (s *Supervisor) capTurn(ctx context.Context, session *model.ChatSession, userMessage string) (*Turn, error) {
	s.logger.Warn("Conversation turn limit reached",
		zap.String("session_id", session.ID),
		zap.Int("max_turns", s.cfg.MaxTurns))

	capMessage := fmt.Sprintf(
		"This conversation has reached its limit of %d turns. Please start a new chat to continue.",
		s.cfg.MaxTurns)

	if err := s.persistMessage(ctx, session.ID, model.ChatRoleUser, userMessage, nil, nil); err != nil {
		s.logger.Error("Failed to persist user message",
			zap.String("session_id", session.ID),
			zap.Error(err))
	}
	if err := s.persistMessage(ctx, session.ID, model.ChatRoleAssistant, capMessage, nil, nil); err != nil {
		s.logger.Error("Failed to persist assistant message",
			zap.String("session_id", session.ID),
			zap.Error(err))
	}

	return &Turn{
		SessionID: session.ID,
		Message:   capMessage,
		Success:   false,
	}, ErrTurnLimit
}

// failTurn records the apology reply and reports the cause. Persistence
// here is best effort; the turn is already failing.
func (s *Supervisor) failTurn(ctx context.Context, sessionID string, cause error) (*Turn, error) {
	s.logger.Error("Turn failed",
		zap.String("session_id", sessionID),
		zap.Error(cause))

	if sessionID != "" {
		if err := s.persistMessage(ctx, sessionID, model.ChatRoleAssistant, apologyMessage, nil, nil); err != nil {
			s.logger.Error("Failed to persist apology message",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}
	return &Turn{
		SessionID: sessionID,
		Message:   apologyMessage,
		Success:   false,
	}, cause
}

func (s *Supervisor) persistMessage(ctx context.Context, sessionID string, role model.ChatRole, content string, todos, refs json.RawMessage) error {
	message := &model.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if role == model.ChatRoleAssistant {
		message.AgentName = supervisorAgentName
		message.TodoTasks = todos
		message.References = refs
	}
	return s.store.CreateMessage(ctx, message)
}

// taskEvent reports one todo's lifecycle over the dispatch channel: either
// a start notice or a terminal result.
type taskEvent struct {
	index   int
	started bool
	result  *model.Result
}

// dispatch executes the batch under the parallelism cap and the batch
// timeout, mutating each todo to its terminal state. The event channel is
// buffered for every possible send, so workers outliving the batch park
// their orphaned results there and exit; those results are never applied.
// On timeout, todos still in progress are failed and todos never started
// stay pending.
func (s *Supervisor) dispatch(ctx context.Context, todos []*model.TodoTask) {
	batchCtx, cancel := context.WithTimeout(ctx, s.cfg.BatchTimeout)
	defer cancel()

	eventCh := make(chan taskEvent, 2*len(todos))
	sem := make(chan struct{}, s.cfg.MaxParallel)

	for i := range todos {
		go func(i int, todo *model.TodoTask) {
			select {
			case sem <- struct{}{}:
			case <-batchCtx.Done():
				return
			}
			defer func() { <-sem }()

			eventCh <- taskEvent{index: i, started: true}
			eventCh <- taskEvent{index: i, result: s.runTodo(batchCtx, todo)}
		}(i, todos[i])
	}

	remaining := len(todos)
	for remaining > 0 {
		select {
		case ev := <-eventCh:
			todo := todos[ev.index]
			if ev.started {
				todo.Status = model.TodoStatusInProgress
				continue
			}
			applyResult(todo, ev.result)
			remaining--

		case <-batchCtx.Done():
			note := "batch canceled"
			if errors.Is(batchCtx.Err(), context.DeadlineExceeded) {
				note = fmt.Sprintf("batch timed out after %s", s.cfg.BatchTimeout)
			}
			for _, todo := range todos {
				if todo.Status == model.TodoStatusInProgress {
					todo.Status = model.TodoStatusFailed
					todo.Result = map[string]interface{}{"error": note}
				}
			}
			s.logger.Warn("Task batch did not finish",
				zap.String("reason", note),
				zap.Int("unfinished", remaining))
			return
		}
	}
}

// runTodo resolves the target agent and executes the todo's task. A todo
// aimed at an unregistered capability fails without executing anything.
func (s *Supervisor) runTodo(ctx context.Context, todo *model.TodoTask) *model.Result {
	ag, ok := s.agents[todo.AgentName]
	if !ok {
		return &model.Result{
			TaskID:    todo.ID,
			AgentName: todo.AgentName,
			Status:    model.TaskStatusFailed,
			Error:     fmt.Sprintf("no agent registered for capability %q", todo.AgentName),
		}
	}

	taskType, _ := todo.Parameters["task_type"].(string)
	task := model.NewTask(taskType, todo.Parameters)
	task.Priority = todo.Priority
	return ag.Execute(ctx, task)
}

func applyResult(todo *model.TodoTask, result *model.Result) {
	if result.Status == model.TaskStatusCompleted {
		todo.Status = model.TodoStatusCompleted
		todo.Result = result.Payload
		return
	}
	todo.Status = model.TodoStatusFailed
	todo.Result = map[string]interface{}{"error": result.Error}
}

func outcomeCounts(todos []*model.TodoTask) (completed, failed int) {
	for _, todo := range todos {
		switch todo.Status {
		case model.TodoStatusCompleted:
			completed++
		case model.TodoStatusFailed:
			failed++
		}
	}
	return completed, failed
}

// sessionTitle derives a session title from its first message.
func sessionTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= 30 {
		return message
	}
	return string(runes[:27]) + "..."
}
