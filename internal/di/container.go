package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-eyewear/api/internal/payments"
	"github.com/lumen-eyewear/api/internal/platform/config"
	"github.com/lumen-eyewear/api/internal/repositories"
	"github.com/lumen-eyewear/api/internal/services"
)

// Services bundles the service-layer contracts that handlers and workers rely
// upon. Concrete implementations are assembled via dependency injection in
// NewContainer.
type Services struct {
	Orders    services.OrderService
	Pipeline  services.OrderPipeline
	Refunds   services.RefundService
	Vouchers  services.VoucherService
	Inventory services.InventoryService
	Warehouse services.WarehouseService
	System    services.SystemService
}

// ContainerDeps carries the externally constructed collaborators: the
// repository registry, the payment gateway, and the queue publishers.
type ContainerDeps struct {
	Registry repositories.Registry
	Gateway  payments.Gateway
	Tasks    services.TaskDispatcher
	Events   services.OrderEventPublisher
	Build    services.BuildInfo
	Logger   *zap.Logger
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore registry and Pub/Sub publishers, while tests can supply in-memory fakes.
func NewContainer(ctx context.Context, cfg config.Config, deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, deps ContainerDeps) (Services, error) {
	var svc Services
	reg := deps.Registry

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: reg.Inventory(),
		Clock:     time.Now,
		Logger:    serviceLogger(logger.Named("inventory")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	voucherSvc, err := services.NewVoucherService(services.VoucherServiceDeps{
		Vouchers: reg.Vouchers(),
		Orders:   reg.Orders(),
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build voucher service: %w", err)
	}
	svc.Vouchers = voucherSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Variants:   reg.Variants(),
		Counters:   reg.Counters(),
		Vouchers:   voucherSvc,
		UnitOfWork: reg,
		Tasks:      deps.Tasks,
		Events:     deps.Events,
		Config: services.OrderConfig{
			ShippingCost: cfg.Orders.ShippingCost,
			RefundWindow: cfg.Orders.RefundWindow,
		},
		Clock:  time.Now,
		Logger: serviceLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	pipeline, err := services.NewOrderPipeline(services.OrderPipelineDeps{
		Orders:     reg.Orders(),
		Variants:   reg.Variants(),
		Vouchers:   voucherSvc,
		Inventory:  inventorySvc,
		State:      orderSvc,
		UnitOfWork: reg,
		Tasks:      deps.Tasks,
		Clock:      time.Now,
		Logger:     serviceLogger(logger.Named("pipeline")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order pipeline: %w", err)
	}
	svc.Pipeline = pipeline

	refundSvc, err := services.NewRefundService(services.RefundServiceDeps{
		Orders:    reg.Orders(),
		State:     orderSvc,
		Inventory: inventorySvc,
		Gateway:   deps.Gateway,
		Tasks:     deps.Tasks,
		Clock:     time.Now,
		Logger:    serviceLogger(logger.Named("refunds")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build refund service: %w", err)
	}
	svc.Refunds = refundSvc

	warehouseSvc, err := services.NewWarehouseService(services.WarehouseServiceDeps{
		ImportNotes: reg.ImportNotes(),
		Counters:    reg.Counters(),
		Inventory:   inventorySvc,
		Clock:       time.Now,
		Logger:      serviceLogger(logger.Named("warehouse")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build warehouse service: %w", err)
	}
	svc.Warehouse = warehouseSvc

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Counters:         reg.Counters(),
		Clock:            time.Now,
		Build:            deps.Build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}

func serviceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}
