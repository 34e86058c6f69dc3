package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mediai-backend/internal/cache"
	"mediai-backend/internal/database"
	"mediai-backend/pkg/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&database.User{},
		&database.FicheConsultation{},
		&database.Conversation{},
		&database.Message{},
		&database.AnalysisTask{},
	))
	return db
}

type runnerFixture struct {
	db      *gorm.DB
	cache   *cache.InMemoryCache
	runner  *Runner
	payload models.AnalysisTaskPayload
}

func newRunnerFixture(t *testing.T, pipeline *Pipeline) *runnerFixture {
	db := newTestDB(t)
	resultCache := cache.NewInMemoryCache()

	conversation := database.Conversation{Id: uuid.New(), UserId: uuid.New()}
	require.NoError(t, db.Create(&conversation).Error)

	payload := models.AnalysisTaskPayload{
		TaskId:         uuid.New(),
		Symptomes:      "fièvre et céphalées",
		UserId:         conversation.UserId,
		ConversationId: conversation.Id,
		CacheKey:       CacheKey(Fingerprint("fièvre et céphalées")),
	}
	task := database.AnalysisTask{
		Id:             payload.TaskId,
		ConversationId: conversation.Id,
		CacheKey:       payload.CacheKey,
		Status:         models.TaskPending,
		CreationTime:   time.Now().UTC(),
	}
	require.NoError(t, db.Create(&task).Error)

	return &runnerFixture{
		db:      db,
		cache:   resultCache,
		runner:  NewRunner(db, resultCache, pipeline),
		payload: payload,
	}
}

func (f *runnerFixture) messages(t *testing.T) []database.Message {
	var messages []database.Message
	require.NoError(t, f.db.Where("conversation_id = ?", f.payload.ConversationId).Order("id ASC").Find(&messages).Error)
	return messages
}

func (f *runnerFixture) task(t *testing.T) database.AnalysisTask {
	var task database.AnalysisTask
	require.NoError(t, f.db.First(&task, "id = ?", f.payload.TaskId).Error)
	return task
}

func TestRunnerSuccess(t *testing.T) {
	pipeline := NewPipeline(threeBackends(
		&fakeChat{response: "avis gpt4"},
		&fakeChat{response: "avis claude"},
		&fakeChat{response: "avis gemini"},
	), &fakeStreamer{chunks: []string{"synthèse ", "finale"}})

	f := newRunnerFixture(t, pipeline)
	outcome := f.runner.Run(context.Background(), f.payload)

	require.True(t, outcome.Success)
	assert.Equal(t, "synthèse finale", outcome.Response)

	messages := f.messages(t)
	require.Len(t, messages, 4)
	roles := map[string]int{}
	for _, message := range messages[:3] {
		roles[message.Role]++
	}
	assert.Equal(t, map[string]int{database.RoleGPT4: 1, database.RoleClaude: 1, database.RoleGemini: 1}, roles)
	assert.Equal(t, database.RoleSynthese, messages[3].Role)
	assert.Equal(t, "synthèse finale", messages[3].Content)

	cached, found, err := f.cache.Get(context.Background(), f.payload.CacheKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "synthèse finale", cached)

	task := f.task(t)
	assert.Equal(t, models.TaskSuccess, task.Status)
	assert.True(t, task.StartTime.Valid)
	assert.True(t, task.CompletionTime.Valid)
}

func TestRunnerBackendFailurePersistedAsPlaceholder(t *testing.T) {
	pipeline := NewPipeline(threeBackends(
		&fakeChat{response: "avis gpt4"},
		&fakeChat{err: errors.New("quota exceeded")},
		&fakeChat{response: "avis gemini"},
	), &fakeStreamer{chunks: []string{"synthèse prudente"}})

	f := newRunnerFixture(t, pipeline)
	outcome := f.runner.Run(context.Background(), f.payload)
	require.True(t, outcome.Success)

	var claudeMessage database.Message
	require.NoError(t, f.db.First(&claudeMessage, "conversation_id = ? AND role = ?", f.payload.ConversationId, database.RoleClaude).Error)
	assert.Equal(t, "Erreur claude : quota exceeded", claudeMessage.Content)
}

func TestRunnerSynthesisFailure(t *testing.T) {
	pipeline := NewPipeline(threeBackends(
		&fakeChat{response: "avis gpt4"},
		&fakeChat{response: "avis claude"},
		&fakeChat{response: "avis gemini"},
	), &fakeStreamer{}) // empty stream

	f := newRunnerFixture(t, pipeline)
	outcome := f.runner.Run(context.Background(), f.payload)

	require.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "no output")

	// The three backend answers are already durable, the synthesis row and the
	// cache entry are not.
	messages := f.messages(t)
	assert.Len(t, messages, 3)
	for _, message := range messages {
		assert.NotEqual(t, database.RoleSynthese, message.Role)
	}

	_, found, err := f.cache.Get(context.Background(), f.payload.CacheKey)
	require.NoError(t, err)
	assert.False(t, found)

	task := f.task(t)
	assert.Equal(t, models.TaskFailure, task.Status)
	assert.Contains(t, task.Error, "no output")
	assert.True(t, task.CompletionTime.Valid)
}

func TestRunnerUpdatesLinkedFiche(t *testing.T) {
	pipeline := NewPipeline(threeBackends(
		&fakeChat{response: "avis gpt4"},
		&fakeChat{response: "avis claude"},
		&fakeChat{response: "avis gemini"},
	), &fakeStreamer{chunks: []string{"diagnostic consolidé"}})

	f := newRunnerFixture(t, pipeline)

	fiche := database.FicheConsultation{
		Id:            uuid.New(),
		NumeroDossier: "CONS-20260901-001",
		Status:        database.FicheEnAnalyse,
	}
	require.NoError(t, f.db.Create(&fiche).Error)
	require.NoError(t, f.db.Model(&database.Conversation{Id: f.payload.ConversationId}).
		Update("fiche_id", fiche.Id).Error)

	outcome := f.runner.Run(context.Background(), f.payload)
	require.True(t, outcome.Success)

	var stored database.FicheConsultation
	require.NoError(t, f.db.First(&stored, "id = ?", fiche.Id).Error)
	assert.Equal(t, database.FicheAnalyseTerminee, stored.Status)
	assert.Equal(t, "diagnostic consolidé", stored.DiagnosticIA)
}

func TestRunnerSuccessWithoutFiche(t *testing.T) {
	pipeline := NewPipeline(threeBackends(
		&fakeChat{response: "a"},
		&fakeChat{response: "b"},
		&fakeChat{response: "c"},
	), &fakeStreamer{chunks: []string{"synthèse"}})

	f := newRunnerFixture(t, pipeline)
	outcome := f.runner.Run(context.Background(), f.payload)

	assert.True(t, outcome.Success)
	assert.Equal(t, models.TaskSuccess, f.task(t).Status)
}
