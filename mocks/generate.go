package mocks

//go:generate mockgen -destination=./mock_datasource.go -package=mocks github.com/rxtech-lab/argo-signals/internal/backtest/engine/engine_v1/datasource DataSource
//go:generate mockgen -destination=./mock_notify.go -package=mocks github.com/rxtech-lab/argo-signals/internal/notify Channel
//go:generate mockgen -destination=./mock_outbox.go -package=mocks github.com/rxtech-lab/argo-signals/internal/outbox Store
