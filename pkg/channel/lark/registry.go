package lark

import (
	"net/http"
	"sync"

	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
)

// Registry tracks the live per-account resources: the messenger wrapping the
// provider client, the persistent connection handle, and the webhook
// listener. At most one of each exists per running account; entries are
// written at account start and removed at shutdown, never concurrently with
// event processing for the same account.
type Registry struct {
	mu         sync.RWMutex
	messengers map[string]Messenger
	conns      map[string]*larkws.Client
	listeners  map[string]*http.Server
}

func NewRegistry() *Registry {
	return &Registry{
		messengers: make(map[string]Messenger),
		conns:      make(map[string]*larkws.Client),
		listeners:  make(map[string]*http.Server),
	}
}

func (r *Registry) putMessenger(accountID string, m Messenger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messengers[accountID] = m
}

func (r *Registry) messengerFor(accountID string) (Messenger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messengers[accountID]
	return m, ok
}

func (r *Registry) putConn(accountID string, conn *larkws.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[accountID] = conn
}

func (r *Registry) putListener(accountID string, server *http.Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[accountID] = server
}

// remove drops every entry for the account. The connection handle is
// discarded without an explicit disconnect: the ws client owns its socket and
// exits when the context passed to Start is cancelled.
func (r *Registry) remove(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messengers, accountID)
	delete(r.conns, accountID)
	delete(r.listeners, accountID)
}

// Accounts returns the ids of all accounts with a registered client.
func (r *Registry) Accounts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.messengers))
	for id := range r.messengers {
		ids = append(ids, id)
	}
	return ids
}
