// Package storage persists commands, domain events and the account read
// model in Azure Table Storage. All writes are single-entity operations;
// conditional inserts (AddEntity) are the only concurrency primitive.
package storage

import (
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

// Storage wraps the table clients used by the engine and the read-model
// updater.
type Storage struct {
	commandTable *aztables.Client
	eventTable   *aztables.Client
	accountTable *aztables.Client
}

// New creates a Storage from a connection string and table names.
func New(connStr, commandTable, eventTable, accountTable string) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		commandTable: svc.NewClient(commandTable),
		eventTable:   svc.NewClient(eventTable),
		accountTable: svc.NewClient(accountTable),
	}, nil
}

func hasStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}

func isConflict(err error) bool     { return hasStatus(err, http.StatusConflict) }
func isNotFound(err error) bool     { return hasStatus(err, http.StatusNotFound) }
func isPrecondition(err error) bool { return hasStatus(err, http.StatusPreconditionFailed) }
