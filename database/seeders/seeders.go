package seeders

import (
	"fmt"
	"log"
	"time"

	"ptaportal_go/database"
	"ptaportal_go/models"
	"ptaportal_go/utils"
)

// SeedAll runs all seeders
func SeedAll() {
	log.Println("Starting database seeding...")

	SeedUsers()
	SeedGradeLevels()
	SeedContributions()
	SeedSchoolYears()

	log.Println("Database seeding completed successfully!")
}

// SeedUsers seeds the users table with the default office accounts
func SeedUsers() {
	var count int64
	database.DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		log.Println("Users already seeded, skipping...")
		return
	}

	// Hash the default password
	hashedPassword, _ := utils.HashPassword("changeme123")

	users := []models.User{
		{
			Username: "admin",
			Password: hashedPassword,
			Email:    "admin@ptaportal.local",
			Role:     "admin",
			Status:   "active",
		},
		{
			Username: "treasurer",
			Password: hashedPassword,
			Email:    "treasurer@ptaportal.local",
			Role:     "treasurer",
			Status:   "active",
		},
		{
			Username: "auditor",
			Password: hashedPassword,
			Email:    "auditor@ptaportal.local",
			Role:     "auditor",
			Status:   "active",
		},
	}

	for _, user := range users {
		if err := database.DB.Create(&user).Error; err != nil {
			log.Printf("Error seeding user %s: %v", user.Username, err)
		}
	}

	log.Println("Users seeded successfully")
}

// SeedGradeLevels seeds the K-12 grade ladder
func SeedGradeLevels() {
	var count int64
	database.DB.Model(&models.GradeLevel{}).Count(&count)
	if count > 0 {
		log.Println("Grade levels already seeded, skipping...")
		return
	}

	names := []string{
		"Kindergarten",
		"Grade 1", "Grade 2", "Grade 3", "Grade 4", "Grade 5", "Grade 6",
		"Grade 7", "Grade 8", "Grade 9", "Grade 10", "Grade 11", "Grade 12",
	}

	for i, name := range names {
		grade := models.GradeLevel{Name: name, SortOrder: i + 1}
		if err := database.DB.Create(&grade).Error; err != nil {
			log.Printf("Error seeding grade level %s: %v", name, err)
		}
	}

	log.Println("Grade levels seeded successfully")
}

// SeedContributions seeds the default contribution catalog
func SeedContributions() {
	var count int64
	database.DB.Model(&models.Contribution{}).Count(&count)
	if count > 0 {
		log.Println("Contributions already seeded, skipping...")
		return
	}

	contributions := []models.Contribution{
		{TypeName: "PTA Membership Fee", Amount: 250, Mandatory: true},
		{TypeName: "School Improvement Fund", Amount: 300, Mandatory: true},
		{TypeName: "Sports Fest Fund", Amount: 150, Mandatory: false},
		{TypeName: "Christmas Program Fund", Amount: 100, Mandatory: false},
	}

	for _, contribution := range contributions {
		if err := database.DB.Create(&contribution).Error; err != nil {
			log.Printf("Error seeding contribution %s: %v", contribution.TypeName, err)
		}
	}

	log.Println("Contributions seeded successfully")
}

// SeedSchoolYears seeds the current school year as the active one
func SeedSchoolYears() {
	var count int64
	database.DB.Model(&models.SchoolYear{}).Count(&count)
	if count > 0 {
		log.Println("School years already seeded, skipping...")
		return
	}

	// Philippine school years run June through March
	now := time.Now()
	startYear := now.Year()
	if now.Month() < time.June {
		startYear--
	}

	year := models.SchoolYear{
		Name:      fmt.Sprintf("%d-%d", startYear, startYear+1),
		StartDate: time.Date(startYear, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(startYear+1, 3, 31, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
	}

	if err := database.DB.Create(&year).Error; err != nil {
		log.Printf("Error seeding school year %s: %v", year.Name, err)
	}

	log.Println("School years seeded successfully")
}
