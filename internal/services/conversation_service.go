package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/ephemeral"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/session"
)

// Group keys and titles that do not come from a scenario.
const (
	NoScenarioKey   = "__none__"
	NoScenarioTitle = "No scenario"
	DemoGroupKey    = "__demo__"
	DemoGroupTitle  = "Demo"

	untitledScenario = "Untitled scenario"
	unknownScenario  = "Scenario"
)

// ConversationItem is a conversation as listed in the sidebar.
type ConversationItem struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	ScenarioID *string   `json:"scenario_id"`
	CreatedAt  time.Time `json:"created_at"`
	IsDemo     bool      `json:"is_demo"`
}

// Group is a collapsible sidebar section.
type Group struct {
	Key           string             `json:"key"`
	Title         string             `json:"title"`
	Expanded      bool               `json:"expanded"`
	Conversations []ConversationItem `json:"conversations"`
}

// Listing is everything the sidebar needs.
type Listing struct {
	Conversations []ConversationItem `json:"conversations"`
	Groups        []Group            `json:"groups"`
}

// DisplayMessage is a message as rendered in the chat pane.
type DisplayMessage struct {
	ID        string               `json:"id"`
	Role      domain.Sender        `json:"role"`
	Text      string               `json:"text"`
	Status    domain.MessageStatus `json:"status,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// Thread is one selected conversation.
type Thread struct {
	Conversation ConversationItem `json:"conversation"`
	Scenario     Resolution       `json:"scenario"`
	Messages     []DisplayMessage `json:"messages"`
}

// DisplayRole maps a stored sender to its display role. Unknown values show
// as system.
func DisplayRole(s domain.Sender) domain.Sender {
	switch s {
	case domain.SenderUser, domain.SenderBot:
		return s
	default:
		return domain.SenderSystem
	}
}

// DisplayOf maps a stored message to its chat-pane form.
func DisplayOf(m domain.Message) DisplayMessage {
	return DisplayMessage{
		ID:        m.ID,
		Role:      DisplayRole(m.Sender),
		Text:      m.Content,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
	}
}

func toDisplay(msgs []domain.Message) []DisplayMessage {
	out := make([]DisplayMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, DisplayOf(m))
	}
	return out
}

func itemFromRow(c *domain.Conversation) ConversationItem {
	return ConversationItem{ID: c.ID, Title: c.Title, ScenarioID: c.AssignmentID, CreatedAt: c.CreatedAt}
}

func itemFromDemo(c *ephemeral.Conversation) ConversationItem {
	return ConversationItem{ID: c.ID, Title: c.Title, ScenarioID: nonEmpty(c.ScenarioID), CreatedAt: c.CreatedAt, IsDemo: true}
}

// GroupConversations buckets items by scenario. titles maps assignment ids to
// display titles; ids missing from it show as "Scenario". Titled groups are
// sorted alphabetically ignoring case, "No scenario" always comes last, and
// items keep their input order inside a group.
func GroupConversations(items []ConversationItem, titles map[string]string) []Group {
	idx := map[string]int{}
	var groups []Group
	for _, it := range items {
		key, title := NoScenarioKey, NoScenarioTitle
		switch {
		case it.IsDemo:
			key, title = DemoGroupKey, DemoGroupTitle
		case it.ScenarioID != nil:
			key = *it.ScenarioID
			if t, ok := titles[key]; ok {
				title = t
			} else {
				title = unknownScenario
			}
		}
		i, ok := idx[key]
		if !ok {
			i = len(groups)
			idx[key] = i
			groups = append(groups, Group{Key: key, Title: title})
		}
		groups[i].Conversations = append(groups[i].Conversations, it)
	}
	sort.SliceStable(groups, func(a, b int) bool {
		if groups[a].Key == NoScenarioKey {
			return false
		}
		if groups[b].Key == NoScenarioKey {
			return true
		}
		return foldKey(groups[a].Title) < foldKey(groups[b].Title)
	})
	return groups
}

// ConversationService owns the conversation list, selection, creation and
// clearing. Demo conversations live in Store and never touch the database.
type ConversationService struct {
	DB       *gorm.DB
	Store    ephemeral.Store
	Resolver *ScenarioResolver
	Now      func() time.Time
}

func (s *ConversationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Load lists the caller's conversations newest first (no deduplication) and
// groups them by scenario. Group expansion state is read from the store;
// groups seen for the first time start expanded.
func (s *ConversationService) Load(ctx context.Context, sess *session.Session) (*Listing, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "Load")
	defer span.End()

	if sess == nil {
		return nil, session.ErrUnauthenticated
	}
	rows, err := repo.ListConversations(ctx, s.DB, sess.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]ConversationItem, 0, len(rows))
	for i := range rows {
		items = append(items, itemFromRow(&rows[i]))
	}
	if demos, err := s.Store.ListConversations(ctx, sess.UserID); err != nil {
		log.Warn().Err(err).Msg("demo conversation list failed")
	} else if len(demos) > 0 {
		for _, d := range demos {
			items = append(items, itemFromDemo(d))
		}
		sort.SliceStable(items, func(a, b int) bool { return items[a].CreatedAt.After(items[b].CreatedAt) })
	}

	groups := GroupConversations(items, s.scenarioTitles(ctx, items))
	s.applyExpansion(ctx, sess.UserID, groups)
	return &Listing{Conversations: items, Groups: groups}, nil
}

// scenarioTitles batch-resolves the distinct assignment ids of items.
func (s *ConversationService) scenarioTitles(ctx context.Context, items []ConversationItem) map[string]string {
	seen := map[string]bool{}
	var ids []string
	for _, it := range items {
		if it.IsDemo || it.ScenarioID == nil || seen[*it.ScenarioID] {
			continue
		}
		seen[*it.ScenarioID] = true
		ids = append(ids, *it.ScenarioID)
	}
	titles := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return titles
	}
	rows, err := repo.ListAssignmentsByIDs(ctx, s.DB, ids)
	if err != nil {
		log.Warn().Err(err).Msg("scenario title lookup failed")
		return titles
	}
	for _, a := range rows {
		if a.Scenario != nil && a.Scenario.Title != "" {
			titles[a.ID] = a.Scenario.Title
		} else {
			titles[a.ID] = untitledScenario
		}
	}
	return titles
}

func (s *ConversationService) applyExpansion(ctx context.Context, userID string, groups []Group) {
	state, err := s.Store.Expansion(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("expansion state read failed")
		state = map[string]bool{}
	}
	changed := false
	for i := range groups {
		v, ok := state[groups[i].Key]
		if !ok {
			v = true
			state[groups[i].Key] = v
			changed = true
		}
		groups[i].Expanded = v
	}
	if changed {
		if err := s.Store.SaveExpansion(ctx, userID, state); err != nil {
			log.Warn().Err(err).Msg("expansion state write failed")
		}
	}
}

// ToggleGroup flips the expansion of one group and returns its new state.
// Other groups are untouched.
func (s *ConversationService) ToggleGroup(ctx context.Context, sess *session.Session, key string) (bool, error) {
	if sess == nil {
		return false, session.ErrUnauthenticated
	}
	state, err := s.Store.Expansion(ctx, sess.UserID)
	if err != nil {
		return false, err
	}
	cur, ok := state[key]
	if !ok {
		cur = true
	}
	state[key] = !cur
	if err := s.Store.SaveExpansion(ctx, sess.UserID, state); err != nil {
		return false, err
	}
	return !cur, nil
}

// Select loads one conversation with its messages oldest first. A linked
// scenario is re-resolved so the prompt reflects later edits.
func (s *ConversationService) Select(ctx context.Context, sess *session.Session, id string) (*Thread, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "Select",
		trace.WithAttributes(attribute.String("conversation.id", id)),
	)
	defer span.End()

	if sess == nil {
		return nil, session.ErrUnauthenticated
	}
	if ephemeral.IsDemoID(id) {
		d, err := s.demo(ctx, sess, id)
		if err != nil {
			return nil, err
		}
		return &Thread{
			Conversation: itemFromDemo(d),
			Scenario:     demoResolution(d),
			Messages:     toDisplay(d.Messages),
		}, nil
	}

	c, err := repo.GetConversation(ctx, s.DB, id, sess.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	t := &Thread{Conversation: itemFromRow(c)}
	if c.AssignmentID != nil {
		t.Scenario = s.Resolver.ForAssignment(ctx, *c.AssignmentID)
	}
	msgs, err := repo.ListMessages(ctx, s.DB, c.ID)
	if err != nil {
		return nil, err
	}
	t.Messages = toDisplay(msgs)
	return t, nil
}

// Messages returns the raw stored messages of an owned conversation, for
// export. Demo conversations are read from the store.
func (s *ConversationService) Messages(ctx context.Context, sess *session.Session, id string) (ConversationItem, Resolution, []domain.Message, error) {
	if sess == nil {
		return ConversationItem{}, Resolution{}, nil, session.ErrUnauthenticated
	}
	if ephemeral.IsDemoID(id) {
		d, err := s.demo(ctx, sess, id)
		if err != nil {
			return ConversationItem{}, Resolution{}, nil, err
		}
		return itemFromDemo(d), demoResolution(d), d.Messages, nil
	}
	c, err := repo.GetConversation(ctx, s.DB, id, sess.UserID)
	if err != nil {
		if isNotFound(err) {
			return ConversationItem{}, Resolution{}, nil, ErrConversationNotFound
		}
		return ConversationItem{}, Resolution{}, nil, err
	}
	var res Resolution
	if c.AssignmentID != nil {
		res = s.Resolver.ForAssignment(ctx, *c.AssignmentID)
	}
	msgs, err := repo.ListMessages(ctx, s.DB, c.ID)
	return itemFromRow(c), res, msgs, err
}

// New starts a conversation under res. Demo resolutions produce an
// in-memory conversation that is never persisted.
func (s *ConversationService) New(ctx context.Context, sess *session.Session, res Resolution) (ConversationItem, error) {
	if sess == nil {
		return ConversationItem{}, session.ErrUnauthenticated
	}
	now := s.now()
	if res.IsDemo {
		d := &ephemeral.Conversation{
			ID:            ephemeral.DemoPrefix + uuid.NewString(),
			OwnerID:       sess.UserID,
			Title:         "Demo: " + now.Format(stamp),
			ScenarioID:    res.DemoScenarioID,
			ScenarioTitle: res.Title(),
			Prompt:        res.Prompt(),
			CreatedAt:     now.UTC(),
		}
		if err := s.Store.PutConversation(ctx, d); err != nil {
			return ConversationItem{}, err
		}
		return itemFromDemo(d), nil
	}
	c, err := repo.CreateConversation(ctx, s.DB, sess.UserID, "Chat "+now.Format(stamp), res.AssignmentID)
	if err != nil {
		return ConversationItem{}, err
	}
	return itemFromRow(c), nil
}

// Clear deletes every message of an owned conversation. Demo conversations
// are cleared in the store only.
func (s *ConversationService) Clear(ctx context.Context, sess *session.Session, id string) error {
	if sess == nil {
		return session.ErrUnauthenticated
	}
	if ephemeral.IsDemoID(id) {
		if _, err := s.demo(ctx, sess, id); err != nil {
			return err
		}
		return s.Store.ClearMessages(ctx, id)
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetConversation(ctx, tx, id, sess.UserID); err != nil {
			if isNotFound(err) {
				return ErrConversationNotFound
			}
			return err
		}
		if _, err := repo.DeleteMessages(ctx, tx, id); err != nil {
			return err
		}
		return repo.TouchConversation(ctx, tx, id)
	})
}

// demo loads a demo conversation owned by the caller.
func (s *ConversationService) demo(ctx context.Context, sess *session.Session, id string) (*ephemeral.Conversation, error) {
	d, err := s.Store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, ephemeral.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if d.OwnerID != sess.UserID {
		return nil, ErrConversationNotFound
	}
	return d, nil
}

func demoResolution(d *ephemeral.Conversation) Resolution {
	return Resolution{
		SystemPrompt:   nonEmpty(d.Prompt),
		ScenarioTitle:  nonEmpty(d.ScenarioTitle),
		IsDemo:         true,
		DemoScenarioID: d.ScenarioID,
	}
}
