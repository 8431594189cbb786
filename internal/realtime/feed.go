// Package realtime implementa el fan-out de cambios del document store hacia listeners en vivo.
//
// Flujo: ChangeFeed (decorator del store) publica un mensaje por colección tocada;
// Hub mantiene un canal por topic#view que recarga el snapshot al recibir el mensaje
// y lo reparte a sus Subscription; Bridge lo empuja por WebSocket.
package realtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"pet-diary/internal/platform/logger"
	"pet-diary/internal/ports/docstore"
)

// Change es el payload publicado en el topic de la colección.
type Change struct {
	Collection string   `json:"collection"`
	Paths      []string `json:"paths"`
}

// ChangeFeed envuelve un docstore.Store y publica cada escritura exitosa.
// Un fallo al publicar se loguea; la escritura ya quedó confirmada.
type ChangeFeed struct {
	docstore.Store
	pub message.Publisher
	log logger.Logger
}

func NewChangeFeed(store docstore.Store, pub message.Publisher, log logger.Logger) *ChangeFeed {
	if log == nil {
		log = logger.Nop()
	}
	return &ChangeFeed{Store: store, pub: pub, log: log}
}

var _ docstore.Store = (*ChangeFeed)(nil)

func (f *ChangeFeed) Create(ctx context.Context, path string, fields map[string]any) (docstore.Document, error) {
	d, err := f.Store.Create(ctx, path, fields)
	if err == nil {
		f.notify(map[string][]string{d.Parent: {d.Path}})
	}
	return d, err
}

func (f *ChangeFeed) Set(ctx context.Context, path string, fields map[string]any) (docstore.Document, error) {
	d, err := f.Store.Set(ctx, path, fields)
	if err == nil {
		f.notify(map[string][]string{d.Parent: {d.Path}})
	}
	return d, err
}

func (f *ChangeFeed) Update(ctx context.Context, path string, fields map[string]any) (docstore.Document, error) {
	d, err := f.Store.Update(ctx, path, fields)
	if err == nil {
		f.notify(map[string][]string{d.Parent: {d.Path}})
	}
	return d, err
}

func (f *ChangeFeed) Delete(ctx context.Context, path string) error {
	if err := f.Store.Delete(ctx, path); err != nil {
		return err
	}
	if parent, _, err := docstore.Split(path); err == nil {
		f.notify(map[string][]string{parent: {path}})
	}
	return nil
}

// Commit publica un mensaje por colección distinta del batch, en orden de aparición.
func (f *ChangeFeed) Commit(ctx context.Context, b *docstore.Batch) error {
	if err := f.Store.Commit(ctx, b); err != nil {
		return err
	}

	byParent := map[string][]string{}
	for _, op := range b.Ops() {
		parent, _, err := docstore.Split(op.Path)
		if err != nil {
			continue
		}
		byParent[parent] = append(byParent[parent], op.Path)
	}
	for _, parent := range b.Parents() {
		f.notify(map[string][]string{parent: byParent[parent]})
	}
	return nil
}

func (f *ChangeFeed) notify(changes map[string][]string) {
	for collection, paths := range changes {
		payload, err := json.Marshal(Change{Collection: collection, Paths: paths})
		if err != nil {
			f.log.Error("realtime: encode change", map[string]any{"collection": collection, "error": err})
			continue
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if err := f.pub.Publish(collection, msg); err != nil {
			f.log.Warn("realtime: publish change", map[string]any{"collection": collection, "error": err})
		}
	}
}
