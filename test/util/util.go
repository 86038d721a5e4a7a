// Package util provides helper functions shared across integration tests.
//
// WaitForHTTP polls an endpoint until it answers with the expected status.
//
// StartMosquitto and StartRabbitMQ launch disposable brokers in Docker
// containers. Callers skip when Docker is not available.
//
// WaitForMetric polls a Prometheus metrics endpoint until the desired metric
// appears in the output.
package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	HTTPTimeout           = 5 * time.Second
	MetricTimeout         = 5 * time.Second
	MosquittoReadyTimeout = 5 * time.Second
	RabbitMQReadyTimeout  = 60 * time.Second

	pollInterval = 50 * time.Millisecond
)

// poll calls probe until it reports done, returns an error or ctx expires.
func poll(ctx context.Context, what string, probe func() (bool, error)) error {
	for {
		done, err := probe()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// WaitForHTTP issues GET requests against url until one returns status.
func WaitForHTTP(ctx context.Context, url string, status int) error {
	return poll(ctx, "endpoint "+url+" not ready", func() (bool, error) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return resp.StatusCode == status, nil
	})
}

// WaitForMetric polls metricsURL until substr shows up in the exposition.
func WaitForMetric(ctx context.Context, metricsURL, substr string) error {
	return poll(ctx, fmt.Sprintf("metric %q not found", substr), func() (bool, error) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false, nil
		}
		body, rerr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if rerr != nil {
			return false, fmt.Errorf("read metrics body: %w", rerr)
		}
		return strings.Contains(string(body), substr), nil
	})
}

// Broker is a running broker container.
type Broker struct {
	URL       string
	container tc.Container
	dir       string
}

// Terminate stops the container and removes its temporary files.
func (b *Broker) Terminate() {
	if b.container != nil {
		_ = b.container.Terminate(context.Background())
	}
	if b.dir != "" {
		_ = os.RemoveAll(b.dir)
	}
}

func startBroker(ctx context.Context, req tc.ContainerRequest, port, scheme, userinfo string) (*Broker, error) {
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		return nil, err
	}
	b := &Broker{container: cont}
	host, err := cont.Host(ctx)
	if err != nil {
		b.Terminate()
		return nil, err
	}
	mapped, err := cont.MappedPort(ctx, nat.Port(port+"/tcp"))
	if err != nil {
		b.Terminate()
		return nil, err
	}
	b.URL = fmt.Sprintf("%s://%s%s:%s", scheme, userinfo, host, mapped.Port())
	return b, nil
}

// StartMosquitto launches a temporary Mosquitto broker accepting anonymous
// clients. Broker.URL is a tcp:// address for paho.
func StartMosquitto(ctx context.Context) (*Broker, error) {
	conf := `listener 1883
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
connection_messages true
`
	dir, err := os.MkdirTemp("", "mosq")
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	b, err := startBroker(ctx, tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}, "1883", "tcp", "")
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	b.dir = dir

	waitCtx, cancel := context.WithTimeout(ctx, MosquittoReadyTimeout)
	defer cancel()
	if err := waitForMQTTReady(waitCtx, b.URL); err != nil {
		b.Terminate()
		return nil, err
	}
	return b, nil
}

// StartRabbitMQ launches a temporary RabbitMQ broker. Broker.URL is an
// amqp:// address with the default guest credentials.
func StartRabbitMQ(ctx context.Context) (*Broker, error) {
	return startBroker(ctx, tc.ContainerRequest{
		Image:        "rabbitmq:3.13-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5672/tcp"),
			wait.ForLog("Server startup complete"),
		).WithDeadline(RabbitMQReadyTimeout),
	}, "5672", "amqp", "guest:guest@")
}

func waitForMQTTReady(ctx context.Context, broker string) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("probe")
	return poll(ctx, "mosquitto not ready", func() (bool, error) {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() != nil {
			return false, nil
		}
		cli.Disconnect(100)
		return true, nil
	})
}
