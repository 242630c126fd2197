package main

import (
	appointmenthandler "treadline/internal/appointments/handler"
	appointmentrepo "treadline/internal/appointments/repository"
	appointmentservice "treadline/internal/appointments/service"
	appointmentvalidator "treadline/internal/appointments/validator"
	availabilityhandler "treadline/internal/availability/handler"
	availabilityrepo "treadline/internal/availability/repository"
	availabilityservice "treadline/internal/availability/service"
	availabilityvalidator "treadline/internal/availability/validator"
	employeerepo "treadline/internal/employees/repository"
	"treadline/internal/notify"
	"treadline/pkg/app"
	"treadline/pkg/config"
	"treadline/pkg/contracts"
)

const ServiceName = "scheduling"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Scheduling service")
	handlers := initServices(cfg)
	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handlers...)
	serverApp.Run()
}

func initServices(cfg *config.Config) []contracts.Handler {
	employeeRepo := employeerepo.NewMongoEmployeeRepository(cfg)

	availabilityRepo := availabilityrepo.NewMongoAvailabilityRepository(cfg)
	appointmentRepo := appointmentrepo.NewMongoAppointmentRepository(cfg)
	slotLockRepo := appointmentrepo.NewSlotLockRepository(cfg)

	availabilitySvc := availabilityservice.NewAvailabilityService(
		availabilityRepo,
		employeeRepo,
		appointmentRepo,
		availabilityvalidator.NewAvailabilityValidator(cfg.Log, cfg.SlotStepMin),
		cfg,
	)

	notifier, err := notify.NewKafkaNotifier(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka notifier", "error", err)
	}
	billing, err := notify.NewKafkaBillingTrigger(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka billing trigger", "error", err)
	}

	appointmentSvc := appointmentservice.NewAppointmentService(
		appointmentRepo,
		slotLockRepo,
		employeeRepo,
		availabilitySvc,
		appointmentvalidator.NewAppointmentValidator(cfg.Log, cfg.SlotStepMin),
		notifier,
		billing,
		cfg,
	)

	cfg.Log.Info("Scheduling services initialized", "database", cfg.MongoDatabaseName)

	return []contracts.Handler{
		availabilityhandler.NewAvailabilityHandler(availabilitySvc, cfg),
		appointmenthandler.NewAppointmentHandler(appointmentSvc, cfg.Log),
	}
}
