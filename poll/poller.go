package poll

import (
	"sync"
	"time"

	"github.com/glowchat/glowchat/globals"
	"github.com/glowchat/glowchat/types"
)

const (
	// DefaultInterval is the scheduled polling cadence.
	DefaultInterval = 2 * time.Second
	// DefaultRefreshDelay is the pause before the out-of-cycle refresh that
	// follows a successful write, long enough for the write to commit.
	DefaultRefreshDelay = 75 * time.Millisecond
	// typingDebounce is how long after the last keystroke the stop-typing
	// signal fires.
	typingDebounce = 2 * time.Second
)

// Snapshot is one client-visible view of the conversation. Messages include
// any speculative reaction patches not yet superseded by an authoritative
// read.
type Snapshot struct {
	Messages      []types.MessageWithReactions
	TypingUsers   []types.TypingUser
	Connected     bool
	LastMessageId int64
}

// reactionPatch is a short-lived speculative change applied on top of the
// confirmed state, so the UI reflects a reaction with zero delay. Patches
// are unconditionally dropped whenever a fresh server snapshot lands; a
// patch whose write was actually rejected self-heals that way.
type reactionPatch struct {
	messageId int64
	add       bool
	reaction  types.MessageReaction
}

// Poller runs the polling synchronization protocol for one joined user:
// a repeating full-state pull, write-then-force-refresh for own actions and
// a typing debounce. All cross-client consistency lives in the server
// stores; the poller never merges, it replaces.
type Poller struct {
	api          *Client
	user         types.JoinedUser
	interval     time.Duration
	refreshDelay time.Duration

	mu            sync.RWMutex
	confirmed     []types.MessageWithReactions
	patches       []reactionPatch
	typingUsers   []types.TypingUser
	connected     bool
	lastMessageId int64

	stopOnce sync.Once
	stopCh   chan struct{}

	timerMu     sync.Mutex
	typingTimer *time.Timer
}

func NewPoller(api *Client, user types.JoinedUser, interval, refreshDelay time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if refreshDelay <= 0 {
		refreshDelay = DefaultRefreshDelay
	}
	return &Poller{
		api:          api,
		user:         user,
		interval:     interval,
		refreshDelay: refreshDelay,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the repeating cycle. The first cycle runs immediately.
// Cycles may overlap a slow fetch; that is tolerated because each cycle
// replaces state wholesale instead of applying deltas.
func (p *Poller) Start() {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		p.cycle()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				go p.cycle()
			}
		}
	}()
}

// Stop cancels the scheduled repetition and the typing debounce timer. It is
// safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.timerMu.Lock()
	if p.typingTimer != nil {
		p.typingTimer.Stop()
		p.typingTimer = nil
	}
	p.timerMu.Unlock()
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
}

// Snapshot returns a copy of the current view with speculative patches
// applied on top of the confirmed state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	messages := make([]types.MessageWithReactions, len(p.confirmed))
	for i, msg := range p.confirmed {
		messages[i] = types.MessageWithReactions{
			ChatMessage: msg.ChatMessage,
			Reactions:   append([]types.MessageReaction(nil), msg.Reactions...),
		}
	}
	for _, patch := range p.patches {
		applyPatch(messages, patch)
	}
	return Snapshot{
		Messages:      messages,
		TypingUsers:   append([]types.TypingUser(nil), p.typingUsers...),
		Connected:     p.connected,
		LastMessageId: p.lastMessageId,
	}
}

func applyPatch(messages []types.MessageWithReactions, patch reactionPatch) {
	for i := range messages {
		if messages[i].Id != patch.messageId {
			continue
		}
		if patch.add {
			messages[i].Reactions = append(messages[i].Reactions, patch.reaction)
			return
		}
		kept := messages[i].Reactions[:0]
		for _, reaction := range messages[i].Reactions {
			if reaction.UserId == patch.reaction.UserId && reaction.Emoji == patch.reaction.Emoji {
				continue
			}
			kept = append(kept, reaction)
		}
		messages[i].Reactions = kept
		return
	}
}

// cycle is one full poll: messages and typing fetched concurrently, then
// reactions per message. A failed fetch flips the connected flag and leaves
// the previous snapshot standing; the schedule continues regardless.
func (p *Poller) cycle() {
	var (
		wg       sync.WaitGroup
		messages []types.ChatMessage
		typing   []types.TypingUser
		msgErr   error
		typErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		messages, msgErr = p.api.Messages(p.user.UserId)
	}()
	go func() {
		defer wg.Done()
		typing, typErr = p.api.TypingUsers(p.user.UserId)
	}()
	wg.Wait()
	if msgErr != nil || typErr != nil {
		globals.AppLogger.Debug("poll cycle failed", "messagesError", msgErr, "typingError", typErr)
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		return
	}
	assembled := p.attachReactions(messages)
	// a cycle that was in flight when Stop ran must not resurrect the
	// connected flag
	select {
	case <-p.stopCh:
		return
	default:
	}
	p.mu.Lock()
	p.confirmed = assembled
	// the authoritative snapshot supersedes every speculative patch
	p.patches = nil
	p.typingUsers = excludeUser(typing, p.user.UserId)
	p.connected = true
	for _, msg := range messages {
		if msg.Id > p.lastMessageId {
			p.lastMessageId = msg.Id
		}
	}
	p.mu.Unlock()
}

// attachReactions loads the reaction set of every message concurrently. A
// failed fetch yields an empty set for that message only, never a cycle
// failure.
func (p *Poller) attachReactions(messages []types.ChatMessage) []types.MessageWithReactions {
	out := make([]types.MessageWithReactions, len(messages))
	var wg sync.WaitGroup
	for i := range messages {
		wg.Add(1)
		go func(i int, msg types.ChatMessage) {
			defer wg.Done()
			reactions, err := p.api.Reactions(msg.Id)
			if err != nil {
				globals.AppLogger.Debug("could not load reactions", "id", msg.Id, "error", err)
				reactions = make([]types.MessageReaction, 0)
			}
			out[i] = types.MessageWithReactions{ChatMessage: msg, Reactions: reactions}
		}(i, messages[i])
	}
	wg.Wait()
	return out
}

func excludeUser(typing []types.TypingUser, userId string) []types.TypingUser {
	filtered := make([]types.TypingUser, 0, len(typing))
	for _, user := range typing {
		if user.UserId != userId {
			filtered = append(filtered, user)
		}
	}
	return filtered
}

// refresh is the out-of-cycle fetch after a successful write. It skips the
// typing list; only the message state needs to catch up with the actor's
// own action.
func (p *Poller) refresh() {
	messages, err := p.api.Messages(p.user.UserId)
	if err != nil {
		globals.AppLogger.Debug("forced refresh failed", "error", err)
		return
	}
	assembled := p.attachReactions(messages)
	p.mu.Lock()
	p.confirmed = assembled
	p.patches = nil
	for _, msg := range messages {
		if msg.Id > p.lastMessageId {
			p.lastMessageId = msg.Id
		}
	}
	p.mu.Unlock()
}

func (p *Poller) scheduleRefresh() {
	time.AfterFunc(p.refreshDelay, p.refresh)
}

// SendMessage appends to the log. On failure the error is returned and no
// local state changes; the caller keeps its compose input until the server
// acknowledged the send.
func (p *Poller) SendMessage(message string, replyTo *types.ChatMessage) error {
	draft := types.MessageDraft{
		Emoji:       p.user.Emoji,
		DisplayName: p.user.DisplayName,
		UserId:      p.user.UserId,
		Message:     message,
	}
	if replyTo != nil {
		draft.ReplyToId = &replyTo.Id
		draft.ReplyToMessage = replyTo.Message
		draft.ReplyToDisplayName = replyTo.DisplayName
	}
	if _, err := p.api.SendMessage(draft); err != nil {
		return err
	}
	p.scheduleRefresh()
	return nil
}

// AddReaction reacts to a message. On success the snapshot reflects the
// reaction immediately through a speculative patch; the forced refresh
// replaces it with the server's truth within the refresh delay.
func (p *Poller) AddReaction(messageId int64, emoji string) error {
	if err := p.api.AddReaction(messageId, p.user.UserId, emoji, p.user.DisplayName); err != nil {
		return err
	}
	p.mu.Lock()
	p.patches = append(p.patches, reactionPatch{
		messageId: messageId,
		add:       true,
		reaction: types.MessageReaction{
			Id:          -time.Now().UnixNano(), // placeholder until the refresh lands
			MessageId:   messageId,
			UserId:      p.user.UserId,
			Emoji:       emoji,
			DisplayName: p.user.DisplayName,
			CreatedAt:   time.Now().UTC(),
		},
	})
	p.mu.Unlock()
	p.scheduleRefresh()
	return nil
}

// RemoveReaction withdraws a reaction, with the same optimistic-patch
// contract as AddReaction.
func (p *Poller) RemoveReaction(messageId int64, emoji string) error {
	if err := p.api.RemoveReaction(messageId, p.user.UserId, emoji); err != nil {
		return err
	}
	p.mu.Lock()
	p.patches = append(p.patches, reactionPatch{
		messageId: messageId,
		reaction:  types.MessageReaction{MessageId: messageId, UserId: p.user.UserId, Emoji: emoji},
	})
	p.mu.Unlock()
	p.scheduleRefresh()
	return nil
}

// Typing signals active composition. Call it on every keystroke; the
// stop-typing signal fires automatically once the debounce elapses.
func (p *Poller) Typing() {
	go func() {
		if err := p.api.SetTyping(p.user.UserId, p.user.Emoji, p.user.DisplayName, true); err != nil {
			globals.AppLogger.Debug("could not send typing state", "error", err)
		}
	}()
	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	if p.typingTimer != nil {
		p.typingTimer.Stop()
	}
	p.typingTimer = time.AfterFunc(typingDebounce, p.StopTyping)
}

// StopTyping sends the explicit stop signal.
func (p *Poller) StopTyping() {
	if err := p.api.SetTyping(p.user.UserId, p.user.Emoji, p.user.DisplayName, false); err != nil {
		globals.AppLogger.Debug("could not send typing stop", "error", err)
	}
}
