package usecase

import (
	"strings"

	"go.uber.org/zap"

	"data-chopper/internal/models/entities"
	"data-chopper/internal/pkg/metrics"
)

// productionLikeEnvironments получают отдельное предупреждение при отказе
var productionLikeEnvironments = []string{"production", "prod", "live"}

// IsAllowed сообщает, входит ли окружение в список разрешенных (без учета регистра)
func IsAllowed(currentEnv string, allowedEnvs []string) bool {
	for _, env := range allowedEnvs {
		if strings.EqualFold(currentEnv, env) {
			return true
		}
	}
	return false
}

// IsProductionLike сообщает, похоже ли имя окружения на production
func IsProductionLike(env string) bool {
	return IsAllowed(env, productionLikeEnvironments)
}

// EnvironmentGate запрещает разрушительные операции вне разрешенных окружений
type EnvironmentGate struct {
	environment string
	allowed     []string
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewEnvironmentGate создает проверку окружения
func NewEnvironmentGate(environment string, allowed []string, m *metrics.Metrics, logger *zap.Logger) *EnvironmentGate {
	return &EnvironmentGate{
		environment: environment,
		allowed:     append([]string(nil), allowed...),
		metrics:     m,
		logger:      logger,
	}
}

// Environment возвращает имя текущего окружения
func (g *EnvironmentGate) Environment() string {
	return g.environment
}

// Check возвращает *entities.EnvironmentDenied, если запуск в текущем окружении запрещен
func (g *EnvironmentGate) Check() error {
	g.logger.Debug("Environment check",
		zap.String("environment", g.environment),
		zap.Strings("allowed", g.allowed))

	if IsAllowed(g.environment, g.allowed) {
		g.logger.Debug("Environment check passed", zap.String("environment", g.environment))
		return nil
	}

	denied := &entities.EnvironmentDenied{
		Environment:    g.environment,
		Allowed:        append([]string(nil), g.allowed...),
		ProductionLike: IsProductionLike(g.environment),
	}

	if g.metrics != nil {
		g.metrics.EnvironmentDenials.Inc()
	}

	if denied.ProductionLike {
		g.logger.Error("DANGER: attempt to chop entries in a production-like environment",
			zap.String("environment", g.environment),
			zap.Strings("allowed", g.allowed))
	} else {
		g.logger.Warn("Environment lock: chopping is not allowed in this environment",
			zap.String("environment", g.environment),
			zap.Strings("allowed", g.allowed))
	}

	return denied
}
