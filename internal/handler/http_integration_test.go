package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gamemaster-server/internal/config"
	"gamemaster-server/internal/handler"
	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"
	"gamemaster-server/internal/scheduler"
	"gamemaster-server/internal/service"
	"gamemaster-server/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Stubs for the model providers: integration tests exercise the HTTP surface,
// storage and broker, not the AI backends.

type stubSpeech struct{}

func (stubSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte("mp3:" + text), nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

type stubRegenerator struct{}

func (stubRegenerator) Regenerate(ctx context.Context, campaignID uuid.UUID) (*models.Message, error) {
	return nil, models.ErrNoAssistantTurn
}

type IntegrationTestSuite struct {
	suite.Suite
	pgContainer  *postgres.PostgresContainer
	rdContainer  *tcredis.RedisContainer
	rmqContainer *rabbitmq.RabbitMQContainer

	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	rabbitConn  *amqp.Connection

	messageRepo   repository.MessageRepository
	mediaStore    repository.MediaStore
	streamStore   stream.Store
	taskScheduler scheduler.Scheduler

	serverURL     string
	testServer    *httptest.Server
	taskMessages  chan amqp.Delivery
	stopConsumer  chan struct{}
	consumerReady chan struct{}
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()
	s.taskMessages = make(chan amqp.Delivery, 20)
	s.stopConsumer = make(chan struct{})
	s.consumerReady = make(chan struct{}, 1)

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err)
	s.pgContainer = pgContainer
	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T(), err)

	rdContainer, err := tcredis.Run(ctx,
		"docker.io/redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("* Ready to accept connections").
				WithOccurrence(1).WithStartupTimeout(1*time.Minute),
		),
	)
	require.NoError(s.T(), err)
	s.rdContainer = rdContainer
	redisHost, err := rdContainer.Host(ctx)
	require.NoError(s.T(), err)
	redisPort, err := rdContainer.MappedPort(ctx, "6379/tcp")
	require.NoError(s.T(), err)
	redisAddr := fmt.Sprintf("%s:%s", redisHost, redisPort.Port())

	rmqContainer, err := rabbitmq.Run(ctx,
		"rabbitmq:3-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete"),
		),
	)
	require.NoError(s.T(), err)
	s.rmqContainer = rmqContainer
	rmqConnStr, err := rmqContainer.AmqpURL(ctx)
	require.NoError(s.T(), err)

	dbPool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(s.T(), err)
	s.dbPool = dbPool
	require.NoError(s.T(), repository.EnsureSchema(ctx, dbPool))

	s.redisClient = redis.NewClient(&redis.Options{Addr: redisAddr})
	require.NoError(s.T(), s.redisClient.Ping(ctx).Err())

	rabbitConn, err := amqp.Dial(rmqConnStr)
	require.NoError(s.T(), err)
	s.rabbitConn = rabbitConn

	cfg := &config.Config{
		Port:                  "0",
		RedisAddr:             redisAddr,
		StreamTTL:             time.Hour,
		StreamLivenessTimeout: 30 * time.Second,
		RabbitMQURL:           rmqConnStr,
		TaskQueue:             "test_gm_tasks",
		TaskWaitQueue:         "test_gm_tasks_wait",
		TaskDLQ:               "test_gm_tasks_dlq",
		DefaultTextModel:      "gpt-4o",
		DefaultImageModel:     "dall-e-3",
	}

	nopLogger := zap.NewNop()
	campaignRepo := repository.NewPgCampaignRepository(dbPool, nopLogger)
	characterRepo := repository.NewPgCharacterRepository(dbPool, nopLogger)
	messageRepo := repository.NewPgMessageRepository(dbPool, nopLogger)
	memoryRepo := repository.NewPgMemoryRepository(dbPool, nopLogger)
	summaryRepo := repository.NewPgSummaryRepository(dbPool, nopLogger)
	jobRepo := repository.NewPgJobProgressRepository(dbPool, nopLogger)
	systemRepo := repository.NewPgGameSystemRepository(dbPool, nopLogger)
	mediaStore := repository.NewRedisMediaStore(s.redisClient, cfg.StreamTTL, nopLogger)
	s.messageRepo = messageRepo
	s.mediaStore = mediaStore

	streamStore := stream.NewRedisStore(s.redisClient, cfg.StreamTTL, cfg.StreamLivenessTimeout, nopLogger)
	taskScheduler, err := scheduler.NewRabbitMQScheduler(rabbitConn, cfg, nopLogger)
	require.NoError(s.T(), err)
	s.streamStore = streamStore
	s.taskScheduler = taskScheduler

	go s.runTestTaskConsumer(rmqConnStr, cfg.TaskQueue)
	select {
	case <-s.consumerReady:
	case <-time.After(15 * time.Second):
		s.T().Fatal("Timeout waiting for test task consumer to become ready")
	}

	campaignService := service.NewCampaignService(campaignRepo, systemRepo, nopLogger,
		cfg.DefaultTextModel, cfg.DefaultImageModel)
	characterService := service.NewCharacterService(characterRepo, campaignRepo, taskScheduler, nopLogger)
	chatService := service.NewChatService(campaignRepo, characterRepo, messageRepo,
		mediaStore, stubSpeech{}, taskScheduler, stubRegenerator{}, nopLogger)
	memoryService := service.NewMemoryService(memoryRepo, stubEmbedder{}, nopLogger)
	summaryService := service.NewSummaryService(summaryRepo, campaignRepo, jobRepo, taskScheduler, nopLogger)
	jobService := service.NewJobService(jobRepo, nopLogger)
	systemService := service.NewGameSystemService(systemRepo, nopLogger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := handler.NewHandler(campaignService, characterService, chatService,
		memoryService, summaryService, jobService, systemService, streamStore, mediaStore, nopLogger)
	h.RegisterRoutes(router)

	s.testServer = httptest.NewServer(router)
	s.serverURL = s.testServer.URL
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.stopConsumer != nil {
		close(s.stopConsumer)
	}
	if s.testServer != nil {
		s.testServer.Close()
	}
	ctx := context.Background()
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.redisClient != nil {
		s.redisClient.Close()
	}
	if s.rabbitConn != nil {
		s.rabbitConn.Close()
	}
	if s.pgContainer != nil {
		require.NoError(s.T(), s.pgContainer.Terminate(ctx))
	}
	if s.rdContainer != nil {
		require.NoError(s.T(), s.rdContainer.Terminate(ctx))
	}
	if s.rmqContainer != nil {
		require.NoError(s.T(), s.rmqContainer.Terminate(ctx))
	}
}

// runTestTaskConsumer drains the test task queue into taskMessages so tests
// can assert on published payloads. Uses its own connection; the suite's main
// connection may close first during teardown.
func (s *IntegrationTestSuite) runTestTaskConsumer(amqpURL, queueName string) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		s.T().Logf("test consumer: failed to connect: %v", err)
		close(s.consumerReady)
		return
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		s.T().Logf("test consumer: failed to open channel: %v", err)
		close(s.consumerReady)
		return
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": "test_gm_tasks_dlq",
	}); err != nil {
		s.T().Logf("test consumer: failed to declare queue %q: %v", queueName, err)
		close(s.consumerReady)
		return
	}
	msgs, err := ch.Consume(queueName, "test-consumer", true, false, false, false, nil)
	if err != nil {
		s.T().Logf("test consumer: failed to register: %v", err)
		close(s.consumerReady)
		return
	}
	s.consumerReady <- struct{}{}

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			s.taskMessages <- msg
		case <-s.stopConsumer:
			return
		}
	}
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode.")
	}
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) postJSON(path string, body any) *http.Response {
	b, err := json.Marshal(body)
	require.NoError(s.T(), err)
	resp, err := http.Post(s.serverURL+path, "application/json", bytes.NewReader(b))
	require.NoError(s.T(), err)
	return resp
}

func (s *IntegrationTestSuite) createCampaign(name string) models.Campaign {
	resp := s.postJSON("/campaigns", map[string]string{"name": name, "description": "integration"})
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	var campaign models.Campaign
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&campaign))
	return campaign
}

func (s *IntegrationTestSuite) TestCampaignLifecycle_Integration() {
	campaign := s.createCampaign("Shadows over Karst")
	assert.Equal(s.T(), "gpt-4o", campaign.TextModel)

	// Fetch it back through the API.
	resp, err := http.Get(s.serverURL + "/campaigns/" + campaign.ID.String())
	require.NoError(s.T(), err)
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	var fetched models.Campaign
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&fetched))
	assert.Equal(s.T(), campaign.ID, fetched.ID)
	assert.Equal(s.T(), "Shadows over Karst", fetched.Name)

	// Quest and clock upserts persist on the row.
	respQuest := s.postJSON("/campaigns/"+campaign.ID.String()+"/quests",
		models.Quest{Title: "Find the heir", Objective: "Search the karst caves"})
	respQuest.Body.Close()
	require.Equal(s.T(), http.StatusNoContent, respQuest.StatusCode)

	respClock := s.postJSON("/campaigns/"+campaign.ID.String()+"/clocks",
		models.Clock{Name: "City watch alert", CurrentTicks: 1, MaxTicks: 6})
	respClock.Body.Close()
	require.Equal(s.T(), http.StatusNoContent, respClock.StatusCode)

	resp2, err := http.Get(s.serverURL + "/campaigns/" + campaign.ID.String())
	require.NoError(s.T(), err)
	defer resp2.Body.Close()
	var updated models.Campaign
	require.NoError(s.T(), json.NewDecoder(resp2.Body).Decode(&updated))
	require.Len(s.T(), updated.Quests, 1)
	assert.Equal(s.T(), models.QuestActive, updated.Quests[0].Status)
	require.Len(s.T(), updated.Clocks, 1)
	assert.Equal(s.T(), 6, updated.Clocks[0].MaxTicks)
}

func (s *IntegrationTestSuite) TestPostMessage_Integration() {
	ctx := context.Background()
	campaign := s.createCampaign("The Drowned Coast")

	resp := s.postJSON("/campaigns/"+campaign.ID.String()+"/messages",
		map[string]string{"text": "I search the wreck for survivors"})
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusAccepted, resp.StatusCode)

	var assistant models.Message
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&assistant))
	assert.Equal(s.T(), models.RoleAssistant, assistant.Role)
	assert.Equal(s.T(), models.MessageGenerating, assistant.Status)

	// Both messages are in the transcript.
	messages, err := s.messageRepo.ListByCampaign(ctx, campaign.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), messages, 2)
	assert.Equal(s.T(), models.RoleUser, messages[0].Role)
	assert.Equal(s.T(), models.MessageComplete, messages[0].Status)
	assert.Equal(s.T(), assistant.ID, messages[1].ID)

	// The turn task landed on the broker.
	select {
	case msg := <-s.taskMessages:
		var payload scheduler.TaskPayload
		require.NoError(s.T(), json.Unmarshal(msg.Body, &payload))
		assert.Equal(s.T(), scheduler.TaskRunTurn, payload.Task)
		assert.Equal(s.T(), campaign.ID, payload.CampaignID)
		assert.Equal(s.T(), assistant.ID, payload.MessageID)
	case <-time.After(10 * time.Second):
		s.T().Fatal("Timeout waiting for run_turn task on the broker")
	}

	// A second player message while the turn is generating conflicts.
	resp2 := s.postJSON("/campaigns/"+campaign.ID.String()+"/messages",
		map[string]string{"text": "Also I light a torch"})
	defer resp2.Body.Close()
	assert.Equal(s.T(), http.StatusConflict, resp2.StatusCode)
}

func (s *IntegrationTestSuite) TestArchivedCampaignRejectsMessages_Integration() {
	campaign := s.createCampaign("Mothballed")

	req, err := http.NewRequest(http.MethodPost,
		s.serverURL+"/campaigns/"+campaign.ID.String()+"/archive", nil)
	require.NoError(s.T(), err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.T(), err)
	resp.Body.Close()
	require.Equal(s.T(), http.StatusNoContent, resp.StatusCode)

	resp2 := s.postJSON("/campaigns/"+campaign.ID.String()+"/messages",
		map[string]string{"text": "hello?"})
	defer resp2.Body.Close()
	assert.Equal(s.T(), http.StatusConflict, resp2.StatusCode)
}

func (s *IntegrationTestSuite) TestMediaRoundTrip_Integration() {
	ctx := context.Background()
	ref, err := s.mediaStore.Save(ctx, []byte("png-bytes"), "image/png")
	require.NoError(s.T(), err)

	resp, err := http.Get(s.serverURL + "/media/" + ref)
	require.NoError(s.T(), err)
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(s.T(), "image/png", resp.Header.Get("Content-Type"))

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "png-bytes", body.String())
}

func (s *IntegrationTestSuite) TestStreamReplay_Integration() {
	ctx := context.Background()
	messageID := uuid.New()

	// A finished turn: two deltas and a terminal status in the log.
	require.NoError(s.T(), s.streamStore.Append(ctx, messageID,
		models.StreamEvent{Type: models.EventTextDelta, Delta: "The cellar door "}))
	require.NoError(s.T(), s.streamStore.Append(ctx, messageID,
		models.StreamEvent{Type: models.EventTextDelta, Delta: "creaks open."}))
	require.NoError(s.T(), s.streamStore.Append(ctx, messageID,
		models.StreamEvent{Type: models.EventStatus, Status: models.StreamDone}))
	require.NoError(s.T(), s.streamStore.SetStatus(ctx, messageID, models.StreamDone))

	resp := s.postJSON("/message_stream", map[string]string{"messageId": messageID.String()})
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(s.T(), "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []models.StreamEvent
	decoder := json.NewDecoder(resp.Body)
	for decoder.More() {
		var event models.StreamEvent
		require.NoError(s.T(), decoder.Decode(&event))
		events = append(events, event)
	}
	require.Len(s.T(), events, 3)
	assert.Equal(s.T(), "The cellar door ", events[0].Delta)
	assert.Equal(s.T(), models.StreamDone, events[2].Status)
}

func (s *IntegrationTestSuite) TestDelayedTaskDelivery_Integration() {
	ctx := context.Background()
	payload := scheduler.TaskPayload{
		Task:       scheduler.TaskExtractMemories,
		CampaignID: uuid.New(),
		MessageID:  uuid.New(),
	}
	require.NoError(s.T(), s.taskScheduler.Enqueue(ctx, payload, 2*time.Second))

	// The task sits in the wait queue until its TTL expires.
	select {
	case <-s.taskMessages:
		s.T().Fatal("Delayed task was delivered immediately")
	case <-time.After(500 * time.Millisecond):
	}

	select {
	case msg := <-s.taskMessages:
		var delivered scheduler.TaskPayload
		require.NoError(s.T(), json.Unmarshal(msg.Body, &delivered))
		assert.Equal(s.T(), payload, delivered)
	case <-time.After(15 * time.Second):
		s.T().Fatal("Timeout waiting for delayed task delivery")
	}
}

func (s *IntegrationTestSuite) TestScheduleSummarize_Integration() {
	campaign := s.createCampaign("Long Haul")

	resp := s.postJSON("/campaigns/"+campaign.ID.String()+"/summarize", map[string]string{})
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusAccepted, resp.StatusCode)

	var job models.JobProgress
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&job))
	assert.NotEqual(s.T(), uuid.Nil, job.ID)

	select {
	case msg := <-s.taskMessages:
		var payload scheduler.TaskPayload
		require.NoError(s.T(), json.Unmarshal(msg.Body, &payload))
		assert.Equal(s.T(), scheduler.TaskSummarizeHistory, payload.Task)
		assert.Equal(s.T(), job.ID, payload.JobID)
	case <-time.After(10 * time.Second):
		s.T().Fatal("Timeout waiting for summarize_history task on the broker")
	}
}
