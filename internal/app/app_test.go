package app

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelled-needs-server/internal/config"
)

func TestBuild(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	cm, err := config.NewManager("")
	require.NoError(t, err)

	c, err := Build(cm, logger, prometheus.NewRegistry())
	require.NoError(t, err)
	assert.NotNil(t, c.Pipeline)
	assert.NotNil(t, c.Resolver)
	assert.NotNil(t, c.Metrics)

	c, err = Build(cm, logger, nil)
	require.NoError(t, err)
	assert.Nil(t, c.Metrics)
}
