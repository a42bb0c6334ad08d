package messaging

import (
	"context"
	"fmt"
	"time"

	"OffloadEngine/errs"
	"OffloadEngine/executor"

	"github.com/nats-io/nats.go"
)

const ServiceName = "nats"

const defaultRequestTimeout = 5 * time.Second

// Service publishes and requests over a NATS connection.
type Service struct {
	nc      *nats.Conn
	headers map[string]string
	timeout time.Duration
}

// NewService connects to options.url (nats.DefaultURL when empty). Headers are attached to every
// message.
func NewService(ctx context.Context, options map[string]any, headers map[string]string) (executor.Client, error) {
	url, err := executor.String(options, "url")
	if err != nil {
		return nil, err
	}
	if url == "" {
		url = nats.DefaultURL
	}
	name, err := executor.String(options, "name")
	if err != nil {
		return nil, err
	}
	timeout, err := executor.Duration(options, "timeout", defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	nc, err := nats.Connect(url, func(o *nats.Options) error {
		if name != "" {
			o.Name = name
		}
		o.Timeout = timeout
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return &Service{nc: nc, headers: headers, timeout: timeout}, nil
}

func (s *Service) Invoke(ctx context.Context, operation string, input map[string]any) (any, error) {
	switch operation {
	case "publish":
		return s.publish(input)
	case "request":
		return s.request(ctx, input)
	default:
		return nil, errs.New(errs.ErrUnknownOperation, ServiceName+"."+operation)
	}
}

func (s *Service) Close() error {
	return s.nc.Drain()
}

func (s *Service) publish(input map[string]any) (any, error) {
	msg, err := s.message(input)
	if err != nil {
		return nil, err
	}
	if err := s.nc.PublishMsg(msg); err != nil {
		return nil, err
	}
	if err := s.nc.Flush(); err != nil {
		return nil, err
	}
	return map[string]any{"subject": msg.Subject, "published": true}, nil
}

func (s *Service) request(ctx context.Context, input map[string]any) (any, error) {
	msg, err := s.message(input)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	reply, err := s.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(reply.Header))
	for key := range reply.Header {
		headers[key] = reply.Header.Get(key)
	}
	return map[string]any{
		"subject": msg.Subject,
		"data":    string(reply.Data),
		"headers": headers,
	}, nil
}

func (s *Service) message(input map[string]any) (*nats.Msg, error) {
	subject, err := executor.RequiredString(input, "subject")
	if err != nil {
		return nil, err
	}
	data, err := executor.String(input, "data")
	if err != nil {
		return nil, err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    []byte(data),
		Header:  nats.Header{},
	}
	for key, value := range s.headers {
		msg.Header.Set(key, value)
	}
	return msg, nil
}
