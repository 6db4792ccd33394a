// Package signaling is the client side of the rendezvous service: peer
// registration, event delivery between peers, ICE server discovery and the
// optional upload of shared logs.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"net/http"
	"peertag/applog"
	"peertag/transport"
	"peertag/util"
	"resty.dev/v3"
	"sync"
	"time"
)

const requestTimeout = 10 * time.Second

type Client struct {
	apiRoot    string
	localId    string
	httpClient *resty.Client

	mu    sync.Mutex
	token string
}

func NewClient(apiRoot string, localId string) *Client {
	return &Client{
		apiRoot:    apiRoot,
		localId:    localId,
		httpClient: resty.New().SetTimeout(requestTimeout),
	}
}

func (c *Client) LocalId() string {
	return c.localId
}

func (c *Client) authorization() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return "Bearer " + c.token
}

// statusError maps a rendezvous reply onto the transport error taxonomy.
func statusError(action string, resp *resty.Response) error {
	var sentinel error
	switch resp.StatusCode() {
	case http.StatusConflict:
		sentinel = transport.ErrIDTaken
	case http.StatusNotFound:
		sentinel = transport.ErrPeerUnavailable
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		sentinel = transport.ErrServerDisconnected
	default:
		return fmt.Errorf("%s failed: %v", action, resp.Status())
	}
	return fmt.Errorf("%s failed: %v: %w", action, resp.Status(), sentinel)
}

// requestError treats any failure to reach the service as a lost server.
func requestError(action string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s failed: %w: %v", action, transport.ErrServerDisconnected, err)
}

// Register claims the local id on the rendezvous service. A taken id
// reports transport.ErrIDTaken.
func (c *Client) Register(ctx context.Context) error {
	var result RegisterResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(RegisterRequest{Id: c.localId}).
		SetResult(&result).
		Post(c.apiRoot + "/peers")

	if err != nil {
		return requestError("registering peer", err)
	}

	if resp.StatusCode() != http.StatusCreated {
		return statusError("registering peer", resp)
	}

	c.mu.Lock()
	c.token = result.Token
	c.mu.Unlock()

	applog.Debug("Registered on rendezvous", zap.String("localId", c.localId))
	return nil
}

// Unregister releases the local id so it can be claimed again.
func (c *Client) Unregister(ctx context.Context) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.authorization()).
		SetPathParam("id", c.localId).
		Delete(c.apiRoot + "/peers/{id}")

	if err != nil {
		return requestError("unregistering peer", err)
	}

	if resp.StatusCode() != http.StatusNoContent && resp.StatusCode() != http.StatusNotFound {
		return statusError("unregistering peer", resp)
	}

	return nil
}

// SendEvent delivers event to its recipient. An unknown recipient reports
// transport.ErrPeerUnavailable.
func (c *Client) SendEvent(ctx context.Context, event EventMessage) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.authorization()).
		SetHeader("Content-Type", "application/json").
		SetPathParam("id", event.GetRecipientId()).
		SetBody(event).
		Post(c.apiRoot + "/peers/{id}/events")

	if err != nil {
		return requestError("posting event", err)
	}

	if resp.StatusCode() != http.StatusAccepted {
		return statusError("posting event", resp)
	}

	return nil
}

func (c *Client) GetIceServers(ctx context.Context) (*IceServersResponse, error) {
	var result IceServersResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.authorization()).
		SetResult(&result).
		Get(c.apiRoot + "/ice-servers")

	if err != nil {
		return nil, requestError("fetching ice servers", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, statusError("fetching ice servers", resp)
	}

	return &result, nil
}

// Listen streams events addressed to the local id into handler until ctx is
// cancelled or the stream drops. A dropped stream reports
// transport.ErrServerDisconnected.
func (c *Client) Listen(ctx context.Context, handler func(EventMessage)) error {
	url := c.apiRoot + "/peers/" + c.localId + "/events"

	eventSource := resty.NewEventSource().
		SetURL(url).
		SetHeader("Authorization", c.authorization()).
		OnMessage(func(message any) {
			restyEvent, ok := message.(*resty.Event)
			if !ok {
				applog.Warn("Invalid event format", zap.Any("message", message))
				return
			}

			event, err := ParseEventMessage(restyEvent.Data)
			if err != nil {
				applog.Warn("Error parsing event", zap.Error(err))
				return
			}

			handler(event)
		}, nil)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			eventSource.Close()
		case <-stop:
		}
	}()

	err := eventSource.Get()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil {
		return fmt.Errorf("event stream failed: %w: %v", transport.ErrServerDisconnected, err)
	}
	return fmt.Errorf("event stream ended: %w", transport.ErrServerDisconnected)
}

// WriteLogEntryToRemote uploads a gzip compressed batch of log entries.
func (c *Client) WriteLogEntryToRemote(entries []*applog.LogEntry) error {
	payload, err := json.Marshal(NewLogMessagesFromAppLogEntries(entries))
	if err != nil {
		return fmt.Errorf("encoding log entries failed: %w", err)
	}

	body, err := util.GzipCompressData(payload)
	if err != nil {
		return fmt.Errorf("compressing log entries failed: %w", err)
	}

	resp, err := c.httpClient.R().
		SetHeader("Authorization", c.authorization()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Content-Encoding", "gzip").
		SetBody(body).
		Post(c.apiRoot + "/logs")

	if err != nil {
		return fmt.Errorf("posting logs failed: %w", err)
	}

	if resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("posting logs failed: %v", resp.Status())
	}

	return nil
}

func (c *Client) Close() error {
	return c.httpClient.Close()
}
