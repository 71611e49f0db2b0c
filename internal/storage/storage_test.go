package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(zap.NewNop(), filepath.Join(t.TempDir(), "scribe.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newSession(id, userID string) *model.ChatSession {
	now := time.Now()
	return &model.ChatSession{
		ID:        id,
		UserID:    userID,
		Title:     model.DefaultSessionTitle,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newMessage(id, sessionID string, role model.ChatRole, content string, at time.Time) *model.ChatMessage {
	return &model.ChatMessage{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: at,
	}
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Create And Fetch Round Trip", func(t *testing.T) {
		store := newTestStore(t)
		session := newSession("s1", "u1")
		session.DocumentID = "doc-9"
		require.NoError(t, store.CreateSession(ctx, session))

		got, err := store.Session(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, "doc-9", got.DocumentID)
		assert.Equal(t, model.DefaultSessionTitle, got.Title)
		assert.True(t, got.Active)
	})

	t.Run("Empty Document ID Survives", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.CreateSession(ctx, newSession("s1", "u1")))

		got, err := store.Session(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, got.DocumentID)
	})

	t.Run("Missing Session Is Not Found", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.Session(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Update Title", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.CreateSession(ctx, newSession("s1", "u1")))

		require.NoError(t, store.UpdateSessionTitle(ctx, "s1", "Add a methods section"))
		got, err := store.Session(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "Add a methods section", got.Title)

		assert.ErrorIs(t, store.UpdateSessionTitle(ctx, "ghost", "x"), ErrNotFound)
	})

	t.Run("Deactivated Sessions Leave The User Listing", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.CreateSession(ctx, newSession("s1", "u1")))
		require.NoError(t, store.CreateSession(ctx, newSession("s2", "u1")))
		require.NoError(t, store.CreateSession(ctx, newSession("s3", "u2")))

		require.NoError(t, store.DeactivateSession(ctx, "s1"))

		sessions, err := store.SessionsByUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "s2", sessions[0].ID)

		assert.ErrorIs(t, store.DeactivateSession(ctx, "ghost"), ErrNotFound)
	})
}

func TestMessageStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Messages Come Back Oldest First", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.CreateSession(ctx, newSession("s1", "u1")))

		base := time.Now().Add(-time.Minute)
		require.NoError(t, store.CreateMessage(ctx, newMessage("m1", "s1", model.ChatRoleUser, "first", base)))
		require.NoError(t, store.CreateMessage(ctx, newMessage("m2", "s1", model.ChatRoleAssistant, "second", base.Add(time.Second))))
		require.NoError(t, store.CreateMessage(ctx, newMessage("m3", "s1", model.ChatRoleUser, "third", base.Add(2*time.Second))))

		messages, err := store.MessagesBySession(ctx, "s1", 0, 10)
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "first", messages[0].Content)
		assert.Equal(t, "third", messages[2].Content)

		page, err := store.MessagesBySession(ctx, "s1", 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "second", page[0].Content)
	})

	t.Run("Assistant Payload Round Trip", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.CreateSession(ctx, newSession("s1", "u1")))

		msg := newMessage("m1", "s1", model.ChatRoleAssistant, "done", time.Now())
		msg.AgentName = "supervisor"
		msg.TodoTasks = json.RawMessage(`[{"id":"t1"}]`)
		msg.References = json.RawMessage(`[{"title":"Paper"}]`)
		require.NoError(t, store.CreateMessage(ctx, msg))

		messages, err := store.MessagesBySession(ctx, "s1", 0, 10)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "supervisor", messages[0].AgentName)
		assert.JSONEq(t, `[{"id":"t1"}]`, string(messages[0].TodoTasks))
		assert.JSONEq(t, `[{"title":"Paper"}]`, string(messages[0].References))
	})

	t.Run("Creating A Message Touches The Session", func(t *testing.T) {
		store := newTestStore(t)
		session := newSession("s1", "u1")
		session.UpdatedAt = time.Now().Add(-time.Hour)
		session.CreatedAt = session.UpdatedAt
		require.NoError(t, store.CreateSession(ctx, session))

		at := time.Now()
		require.NoError(t, store.CreateMessage(ctx, newMessage("m1", "s1", model.ChatRoleUser, "hi", at)))

		got, err := store.Session(ctx, "s1")
		require.NoError(t, err)
		assert.WithinDuration(t, at, got.UpdatedAt, time.Second)
	})

	t.Run("Count Tracks Only The Session", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.CreateSession(ctx, newSession("s1", "u1")))
		require.NoError(t, store.CreateSession(ctx, newSession("s2", "u1")))

		now := time.Now()
		require.NoError(t, store.CreateMessage(ctx, newMessage("m1", "s1", model.ChatRoleUser, "a", now)))
		require.NoError(t, store.CreateMessage(ctx, newMessage("m2", "s1", model.ChatRoleAssistant, "b", now)))
		require.NoError(t, store.CreateMessage(ctx, newMessage("m3", "s2", model.ChatRoleUser, "c", now)))

		count, err := store.CountMessages(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		count, err = store.CountMessages(ctx, "empty")
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestTaskRunStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Store Update Fetch", func(t *testing.T) {
		store := newTestStore(t)

		started := time.Now().Add(-time.Second)
		require.NoError(t, store.StoreTaskRun(ctx, &model.TaskRun{
			TaskID:    "task-1",
			AgentName: "writer",
			TaskType:  "generate_draft",
			Status:    model.TaskStatusInProgress,
			Attempts:  1,
			StartedAt: started,
		}))

		completed := time.Now()
		require.NoError(t, store.UpdateTaskRun(ctx, &model.TaskRun{
			TaskID:      "task-1",
			Status:      model.TaskStatusCompleted,
			Attempts:    2,
			Result:      json.RawMessage(`{"content":"draft"}`),
			CompletedAt: &completed,
		}))

		run, err := store.TaskRun(ctx, "task-1")
		require.NoError(t, err)
		assert.Equal(t, "writer", run.AgentName)
		assert.Equal(t, model.TaskStatusCompleted, run.Status)
		assert.Equal(t, 2, run.Attempts)
		assert.JSONEq(t, `{"content":"draft"}`, string(run.Result))
		require.NotNil(t, run.CompletedAt)
	})

	t.Run("Missing Run Is Not Found", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.TaskRun(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("List Filters And Orders Newest First", func(t *testing.T) {
		store := newTestStore(t)

		base := time.Now().Add(-time.Hour)
		runs := []*model.TaskRun{
			{TaskID: "t1", AgentName: "writer", TaskType: "generate_draft", Status: model.TaskStatusCompleted, StartedAt: base},
			{TaskID: "t2", AgentName: "outline", TaskType: "create_section", Status: model.TaskStatusFailed, StartedAt: base.Add(time.Minute)},
			{TaskID: "t3", AgentName: "writer", TaskType: "improve_style", Status: model.TaskStatusCompleted, StartedAt: base.Add(2 * time.Minute)},
		}
		for _, run := range runs {
			require.NoError(t, store.StoreTaskRun(ctx, run))
		}

		got, err := store.ListTaskRuns(ctx, map[string]interface{}{"agent_name": "writer"}, 0, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "t3", got[0].TaskID)
		assert.Equal(t, "t1", got[1].TaskID)
	})

	t.Run("Delete Before Removes Only Old Runs", func(t *testing.T) {
		store := newTestStore(t)

		old := time.Now().Add(-48 * time.Hour)
		recent := time.Now().Add(-time.Hour)
		require.NoError(t, store.StoreTaskRun(ctx, &model.TaskRun{
			TaskID: "old", AgentName: "writer", TaskType: "generate_draft",
			Status: model.TaskStatusCompleted, StartedAt: old,
		}))
		require.NoError(t, store.StoreTaskRun(ctx, &model.TaskRun{
			TaskID: "recent", AgentName: "writer", TaskType: "generate_draft",
			Status: model.TaskStatusCompleted, StartedAt: recent,
		}))

		deleted, err := store.DeleteTaskRunsBefore(ctx, time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = store.TaskRun(ctx, "old")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.TaskRun(ctx, "recent")
		assert.NoError(t, err)
	})
}

func TestSectionStoreOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now()
	make3 := func(id string, position int) *model.Section {
		return &model.Section{
			ID:            id,
			DocumentID:    "doc",
			Position:      position,
			DisplayNumber: "x",
			Title:         "T",
			Content:       "c",
			Status:        model.SectionStatusDraft,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	require.NoError(t, store.CreateSection(ctx, make3("a", 1)))
	require.NoError(t, store.CreateSection(ctx, make3("b", 2)))
	require.NoError(t, store.CreateSection(ctx, make3("c", 3)))

	t.Run("Position Swap Is Atomic", func(t *testing.T) {
		// Swapping two positions directly would trip a unique constraint
		// without the two-phase update.
		err := store.UpdateSectionPositions(ctx, "doc", map[string]int{
			"a": 3, "b": 2, "c": 1,
		})
		require.NoError(t, err)

		sections, err := store.SectionsByDocument(ctx, "doc")
		require.NoError(t, err)
		require.Len(t, sections, 3)
		assert.Equal(t, "c", sections[0].ID)
		assert.Equal(t, "b", sections[1].ID)
		assert.Equal(t, "a", sections[2].ID)
	})

	t.Run("Soft Deleted Sections Disappear From Reads", func(t *testing.T) {
		require.NoError(t, store.SoftDeleteSections(ctx, []string{"b"}))

		_, err := store.SectionByID(ctx, "b")
		assert.ErrorIs(t, err, ErrNotFound)

		sections, err := store.SectionsByDocument(ctx, "doc")
		require.NoError(t, err)
		assert.Len(t, sections, 2)
	})
}
