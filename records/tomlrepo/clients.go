package tomlrepo

import (
	"context"
	"fmt"
	"sync"

	"github.com/wealthmesh/wealthmesh/records"
)

type clientsFile struct {
	Clients map[string]records.Client `toml:"clients"`
}

// Clients is a TOML file-backed records.ClientRepository.
type Clients struct {
	mu   sync.Mutex
	path string
}

// NewClients creates a client repository backed by the TOML file at path.
func NewClients(path string) *Clients {
	return &Clients{path: path}
}

func (r *Clients) Get(_ context.Context, clientID string) (records.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var file clientsFile
	if err := loadFile(r.path, &file); err != nil {
		return records.Client{}, err
	}
	c, ok := file.Clients[clientID]
	if !ok {
		return records.Client{}, fmt.Errorf("client %q: %w", clientID, records.ErrNotFound)
	}
	return c, nil
}

func (r *Clients) Put(_ context.Context, client records.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var file clientsFile
	if err := loadFile(r.path, &file); err != nil {
		return err
	}
	if file.Clients == nil {
		file.Clients = make(map[string]records.Client)
	}
	file.Clients[client.ID] = client
	return saveFile(r.path, &file)
}

func (r *Clients) Update(_ context.Context, clientID string, fields map[string]string) (records.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var file clientsFile
	if err := loadFile(r.path, &file); err != nil {
		return records.Client{}, err
	}
	c, ok := file.Clients[clientID]
	if !ok {
		return records.Client{}, fmt.Errorf("client %q: %w", clientID, records.ErrNotFound)
	}
	records.ApplyClientFields(&c, fields)
	file.Clients[clientID] = c
	if err := saveFile(r.path, &file); err != nil {
		return records.Client{}, err
	}
	return c, nil
}
