package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `
{
  "servers": [
    {
      "server_names": ["localhost"],
      "endpoints": [{"host": "127.0.0.1", "port": 8080}],
      "root": "./www",
      "indexes": ["index.html"],
      "autoindex": false,
      "client_max_body_size": 1048576,
      "keep_alive": true,
      "status_pages": {"404": "./err/404.html"},
      "locations": [
        {"path_prefix": "/api", "allowed_methods": ["GET"]},
        {"path_prefix": "/up", "upload_path": "./uploads", "allowed_methods": ["POST"]}
      ]
    }
  ]
}`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, sampleJSON)
	root, err := Load(path)
	require.NoError(t, err)
	require.Len(t, root.Servers, 1)

	s := root.Servers[0]
	assert.Equal(t, "./www", s.Root)
	assert.Len(t, s.ResolvedEndpoints, 1)
	assert.Equal(t, "127.0.0.1:8080", s.ResolvedEndpoints[0].String())
	assert.True(t, s.Locations[0].AllowedMethods.Set)
	assert.Equal(t, []Method{GET}, s.Locations[0].AllowedMethods.Value)
	assert.False(t, s.Locations[0].UploadPath.Set)
	assert.True(t, s.Locations[1].UploadPath.Set)
	assert.Equal(t, "./uploads", s.Locations[1].UploadPath.Value)
}

func TestDefaultServerNameIsWildcard(t *testing.T) {
	path := writeTemp(t, `{"servers":[{"endpoints":[{"host":"127.0.0.1","port":80}],"root":"./www"}]}`)
	root, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"_"}, root.Servers[0].ServerNames)
}

func TestRejectsMissingRoot(t *testing.T) {
	path := writeTemp(t, `{"servers":[{"endpoints":[{"host":"127.0.0.1","port":80}]}]}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestRejectsBadLocationPrefix(t *testing.T) {
	path := writeTemp(t, `{"servers":[{"endpoints":[{"host":"127.0.0.1","port":80}],"root":"./www","locations":[{"path_prefix":"api"}]}]}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestRejectsInvalidRedirectStatus(t *testing.T) {
	path := writeTemp(t, `{"servers":[{"endpoints":[{"host":"127.0.0.1","port":80}],"root":"./www","locations":[{"path_prefix":"/x","redirect":{"status":200,"target":"/y"}}]}]}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestNoServersIsError(t *testing.T) {
	path := writeTemp(t, `{"servers":[]}`)
	_, err := Load(path)
	assert.Error(t, err)
}
