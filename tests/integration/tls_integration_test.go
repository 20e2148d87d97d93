//go:build integration

package integration

import (
    "context"
    "crypto/rand"
    "crypto/rsa"
    "crypto/tls"
    "crypto/x509"
    "crypto/x509/pkix"
    "encoding/pem"
    "io"
    "log"
    "math/big"
    "net"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/amirimatin/go-console/pkg/bootstrap"
    "github.com/amirimatin/go-console/pkg/transport"
)

// REST and the STOMP WebSocket both run over TLS verified against a test CA.
func TestClusteredDashboardOverTLS(t *testing.T) {
    dir := t.TempDir()
    caFile, certFile, keyFile := mustMakeTestCerts(t, dir)

    srv := newFakeServer(t)
    cert, err := tls.LoadX509KeyPair(certFile, keyFile)
    if err != nil { t.Fatalf("load server cert: %v", err) }
    srv.srv.TLS = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
    srv.srv.StartTLS()

    cfg := testConfig(srv.addr())
    cfg.TLSEnable = true
    cfg.TLSCA = caFile
    c, err := bootstrap.Build(cfg, log.New(io.Discard, "", 0))
    if err != nil { t.Fatalf("build: %v", err) }
    defer c.Close()
    if u, _ := c.WebSocketURL(); u[:6] != "wss://" { t.Fatalf("expected wss url, got %s", u) }

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    d, err := c.NewDashboard(ctx, bootstrap.DashboardOptions{})
    if err != nil { t.Fatalf("dashboard: %v", err) }
    if err := d.Mount(ctx); err != nil { t.Fatalf("mount: %v", err) }

    waitUntil(t, 5*time.Second, func() error {
        if srv.broker.subscribers(transport.TopicCluster) != 1 || d.Snapshot().Self.Name != "axon-1" { return errNotYet }
        return nil
    })
    srv.addNode(transport.Node{Name: "axon-2"})
    srv.broker.publish(transport.TopicCluster, "")
    waitUntil(t, 5*time.Second, func() error {
        if len(d.Snapshot().Nodes) != 2 { return errNotYet }
        return nil
    })
    d.Teardown()
}

func TestTLSRejectsUnknownCA(t *testing.T) {
    dir := t.TempDir()
    _, certFile, keyFile := mustMakeTestCerts(t, dir)
    otherCA, _, _ := mustMakeTestCerts(t, filepath.Join(dir, "other"))

    srv := newFakeServer(t)
    cert, err := tls.LoadX509KeyPair(certFile, keyFile)
    if err != nil { t.Fatalf("load server cert: %v", err) }
    srv.srv.TLS = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
    srv.srv.StartTLS()

    cfg := testConfig(srv.addr())
    cfg.TLSEnable = true
    cfg.TLSCA = otherCA
    c, err := bootstrap.Build(cfg, log.New(io.Discard, "", 0))
    if err != nil { t.Fatalf("build: %v", err) }
    defer c.Close()
    if _, err := c.Client.GetNodes(context.Background()); err == nil { t.Fatalf("expected certificate error") }
}

// mustMakeTestCerts writes a CA and a server leaf for 127.0.0.1 into dir and
// returns the CA, cert and key paths.
func mustMakeTestCerts(t *testing.T, dir string) (string, string, string) {
    t.Helper()
    if err := os.MkdirAll(dir, 0o755); err != nil { t.Fatalf("mkdir: %v", err) }
    caKey, err := rsa.GenerateKey(rand.Reader, 2048)
    if err != nil { t.Fatalf("ca key: %v", err) }
    caTpl := &x509.Certificate{
        SerialNumber:          big.NewInt(1),
        Subject:               pkix.Name{CommonName: "console-test-ca"},
        NotBefore:             time.Now().Add(-time.Hour),
        NotAfter:              time.Now().Add(24 * time.Hour),
        IsCA:                  true,
        KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
        BasicConstraintsValid: true,
    }
    caDER, err := x509.CreateCertificate(rand.Reader, caTpl, caTpl, &caKey.PublicKey, caKey)
    if err != nil { t.Fatalf("ca cert: %v", err) }
    caCert, err := x509.ParseCertificate(caDER)
    if err != nil { t.Fatalf("parse ca: %v", err) }

    key, err := rsa.GenerateKey(rand.Reader, 2048)
    if err != nil { t.Fatalf("server key: %v", err) }
    tpl := &x509.Certificate{
        SerialNumber: big.NewInt(2),
        Subject:      pkix.Name{CommonName: "axon-1"},
        NotBefore:    time.Now().Add(-time.Hour),
        NotAfter:     time.Now().Add(24 * time.Hour),
        KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
        ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
        IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
        DNSNames:     []string{"localhost"},
    }
    der, err := x509.CreateCertificate(rand.Reader, tpl, caCert, &key.PublicKey, caKey)
    if err != nil { t.Fatalf("server cert: %v", err) }

    caFile := filepath.Join(dir, "ca.pem")
    certFile := filepath.Join(dir, "server.pem")
    keyFile := filepath.Join(dir, "server-key.pem")
    writePEM(t, caFile, "CERTIFICATE", caDER)
    writePEM(t, certFile, "CERTIFICATE", der)
    writePEM(t, keyFile, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))
    return caFile, certFile, keyFile
}

func writePEM(t *testing.T, path, typ string, der []byte) {
    t.Helper()
    if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der}), 0o600); err != nil {
        t.Fatalf("write %s: %v", path, err)
    }
}
