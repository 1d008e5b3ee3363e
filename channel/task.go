package channel

import (
	"context"

	"reachflow/models"
	"reachflow/store"
)

// StoreTaskCreator records tasks in the persistent store. Task steps never
// leave the system; "sending" one just files the follow-up for a human.
type StoreTaskCreator struct {
	Store store.Store
}

func NewStoreTaskCreator(s store.Store) *StoreTaskCreator {
	return &StoreTaskCreator{Store: s}
}

func (c *StoreTaskCreator) CreateTask(ctx context.Context, task *models.Task) error {
	return c.Store.CreateTask(task)
}
