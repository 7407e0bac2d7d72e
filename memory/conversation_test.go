package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoke/convoke/core"
)

func TestConversationStore_AppendAndGet(t *testing.T) {
	store := NewConversationStore()

	store.Append("agent", "thread", core.NewUserMessage("hi"))
	store.Append("agent", "thread", core.NewAssistantMessage("hello"))

	msgs := store.Get("agent", "thread")
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
}

func TestConversationStore_BoundedMemory(t *testing.T) {
	store := NewConversationStore(func(o *ConversationOptions) {
		o.MaxMessages = 5
	})

	for i := 0; i < 20; i++ {
		store.Append("agent", "thread", core.NewUserMessage(fmt.Sprintf("msg-%d", i)))
	}

	msgs := store.Get("agent", "thread")
	require.Len(t, msgs, 5)
	// Exactly the last five, oldest evicted first.
	for i, msg := range msgs {
		assert.Equal(t, fmt.Sprintf("msg-%d", 15+i), msg.Content)
	}
}

func TestConversationStore_AtomicMultiAppend(t *testing.T) {
	store := NewConversationStore(func(o *ConversationOptions) {
		o.MaxMessages = 10
	})

	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 25; i++ {
				user := core.NewUserMessage(fmt.Sprintf("u-%d-%d", g, i))
				asst := core.NewAssistantMessage(fmt.Sprintf("a-%d-%d", g, i))
				store.Append("agent", "thread", user, asst)
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}

	msgs := store.Get("agent", "thread")
	require.Len(t, msgs, 10)
	// Pairs appended together must never be split by another writer.
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, core.RoleUser, msgs[i].Role)
		assert.Equal(t, core.RoleAssistant, msgs[i+1].Role)
		assert.Equal(t, msgs[i].Content[1:], msgs[i+1].Content[1:])
	}
}

func TestConversationStore_TTLEviction(t *testing.T) {
	now := time.Now()
	store := NewConversationStore(func(o *ConversationOptions) {
		o.TTL = time.Hour
		o.Now = func() time.Time { return now }
	})

	store.Append("agent", "thread", core.NewUserMessage("old"))

	now = now.Add(2 * time.Hour)
	store.Append("agent", "thread", core.NewUserMessage("fresh"))

	msgs := store.Get("agent", "thread")
	require.Len(t, msgs, 1)
	assert.Equal(t, "fresh", msgs[0].Content)
}

func TestConversationStore_ZeroTTLKeepsForever(t *testing.T) {
	now := time.Now()
	store := NewConversationStore(func(o *ConversationOptions) {
		o.TTL = 0
		o.Now = func() time.Time { return now }
	})

	store.Append("agent", "thread", core.NewUserMessage("kept"))
	now = now.Add(1000 * time.Hour)

	assert.Len(t, store.Get("agent", "thread"), 1)
}

func TestConversationStore_GetReturnsCopy(t *testing.T) {
	store := NewConversationStore()
	store.Append("agent", "thread", core.NewUserMessage("original"))

	msgs := store.Get("agent", "thread")
	msgs[0].Content = "mutated"

	assert.Equal(t, "original", store.Get("agent", "thread")[0].Content)
}

func TestConversationStore_ThreadsAreIsolated(t *testing.T) {
	store := NewConversationStore()
	store.Append("agent", "t1", core.NewUserMessage("one"))
	store.Append("agent", "t2", core.NewUserMessage("two"))
	store.Append("other", "t1", core.NewUserMessage("three"))

	assert.Len(t, store.Get("agent", "t1"), 1)
	assert.Len(t, store.Get("agent", "t2"), 1)
	assert.Len(t, store.Get("other", "t1"), 1)
	assert.Empty(t, store.Get("other", "t2"))
}

func TestConversationStore_Clear(t *testing.T) {
	store := NewConversationStore()
	store.Append("agent", "thread", core.NewUserMessage("hi"))
	store.Clear("agent", "thread")
	assert.Empty(t, store.Get("agent", "thread"))
}
