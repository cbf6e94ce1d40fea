// Command seed bootstraps a development database with a demo owner, a
// manager, two teams and some tasks so the assistant has data to talk about.
package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"crewmind/internal/config"
	"crewmind/internal/model"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	configFile := flag.String("config", "", "config file path")
	flag.Parse()

	cfg := config.Load(*configFile)
	db, err := cfg.OpenGormDB()
	if err != nil {
		slog.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	if err := db.AutoMigrate(
		&model.User{}, &model.Team{}, &model.Task{}, &model.Meeting{},
		&model.Note{}, &model.TeamNote{}, &model.Attendance{},
		&model.Insight{}, &model.AIActionLog{},
	); err != nil {
		slog.Error("db migrate failed", "err", err)
		os.Exit(1)
	}

	hash := func(pw string) string {
		h, _ := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		return string(h)
	}

	owner := model.User{Username: "ava", Password: hash("ava123"), Name: "Ava Stone", Role: model.RoleOwner, Timezone: "America/New_York"}
	if err := db.Create(&owner).Error; err != nil {
		slog.Error("seed owner failed", "err", err)
		os.Exit(1)
	}
	manager := model.User{Username: "raj", Password: hash("raj123"), Name: "Raj Mehta", Role: model.RoleManager, OwnerID: &owner.ID, Timezone: "Asia/Kolkata"}
	if err := db.Create(&manager).Error; err != nil {
		slog.Error("seed manager failed", "err", err)
		os.Exit(1)
	}

	fixspire := model.Team{OwnerID: owner.ID, TeamName: "Fixspire", Members: []string{"Priya", "Daniel", "Mei"}}
	platform := model.Team{OwnerID: manager.ID, TeamName: "Platform", Members: []string{"Omar", "Lena"}}
	db.Create(&fixspire)
	db.Create(&platform)

	due := time.Now().UTC().AddDate(0, 0, 3)
	db.Create(&model.Task{TeamID: fixspire.ID, Title: "Ship onboarding flow", AssignedTo: "Priya", Status: model.TaskInProgress, DueDate: &due, CreatedBy: owner.ID})
	db.Create(&model.Task{TeamID: fixspire.ID, Title: "Fix billing webhook", AssignedTo: "Daniel", Status: model.TaskPending, CreatedBy: owner.ID})
	db.Create(&model.Task{TeamID: platform.ID, Title: "Upgrade build runners", AssignedTo: "Omar", Status: model.TaskPending, CreatedBy: manager.ID})

	slog.Info("seed complete", "owner", owner.Username, "manager", manager.Username)
}
