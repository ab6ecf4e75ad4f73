package entity

import "context"

type Publisher interface {
	JetstreamEventInit(ctx context.Context) error
}
