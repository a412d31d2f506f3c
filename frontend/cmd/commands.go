package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	ishell "github.com/abiosoft/ishell"
	"github.com/common-nighthawk/go-figure"
	"github.com/jghoshh/habitual/backend/models"
	"github.com/jghoshh/habitual/backend/server/auth"
	"github.com/jghoshh/habitual/backend/service"
	"github.com/jghoshh/habitual/frontend/client"
	"github.com/jghoshh/habitual/lib/utils"
)

// guestCommands is a slice of Command structures containing commands that are available to users who have not logged in.
var guestCommands []Command

// userCommands is a slice of Command structures containing commands that are available only to logged in users.
var userCommands []Command

// commonCommands is a slice of Command structures containing commands that are available to all users, regardless of their login status.
var commonCommands []Command

// loggedIn is a boolean variable that indicates whether a user is currently logged in.
var loggedIn bool

// shell represents an instance of the interactive shell used for this application.
var shell *ishell.Shell

// lastHabits holds the rows of the last listing so commands can take a row number instead of an id.
var lastHabits []models.Habit

// The Command struct defines a user command in the system. Each command has a Name, a Desc (short for description), and a Func (the function to execute when the command is called).
type Command struct {
	Name string                  // Name is the name of the command.
	Desc string                  // Desc is a short description of what the command does.
	Func func(c *ishell.Context) // Func is the function that is executed when the command is invoked.
}

// InitShell initializes the shell and the guest, user and common commands.
// When devSigningKey is set, guests may mint their own token with 'devlogin'.
func InitShell(devSigningKey string) {

	// Initialize shell
	shell = ishell.New()

	// Define the commands available to a guest user (not signed in)
	guestCommands = []Command{
		{
			Name: "login",
			Desc: "Sign in with an access token",
			Func: func(c *ishell.Context) {
				var token string
				for {
					c.Print("Paste your access token: ")
					token = strings.TrimSpace(c.ReadPassword())
					if len(token) > 0 {
						break
					}
					c.Println("Token cannot be empty.")
				}
				signIn(c, token)
			},
		},
	}

	if devSigningKey != "" {
		guestCommands = append(guestCommands, Command{
			Name: "devlogin",
			Desc: "Sign in as a local user: devlogin <user-id> [email]",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Println("Usage: devlogin <user-id> [email]")
					return
				}
				email := ""
				if len(c.Args) > 1 {
					if !utils.ValidateEmail(c.Args[1]) {
						c.Println("Email is not valid.")
						return
					}
					email = c.Args[1]
				}
				token, err := auth.CreateAuthToken(devSigningKey, c.Args[0], email, 24*time.Hour)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				signIn(c, token)
			},
		})
	}

	// Define the commands available to a signed in user
	userCommands = []Command{
		{
			Name: "habits",
			Desc: "List your habits",
			Func: func(c *ishell.Context) {
				habits, err := client.ListHabits()
				if handleError(err) {
					return
				}
				lastHabits = habits
				c.Print(renderHabits(habits))
			},
		},
		{
			Name: "week",
			Desc: "Show the weekly table: week [YYYY-MM-DD]",
			Func: func(c *ishell.Context) {
				week, err := client.Week(arg(c, 0))
				if handleError(err) {
					return
				}
				lastHabits = lastHabits[:0]
				for _, row := range week.Habits {
					lastHabits = append(lastHabits, row.Habit)
				}
				c.Print(renderWeek(week))
			},
		},
		{
			Name: "day",
			Desc: "Show the habits due on a day: day [YYYY-MM-DD]",
			Func: func(c *ishell.Context) {
				day, err := client.Day(arg(c, 0))
				if handleError(err) {
					return
				}
				lastHabits = lastHabits[:0]
				for _, item := range day.Items {
					lastHabits = append(lastHabits, item.Habit)
				}
				c.Print(renderDay(day))
			},
		},
		{
			Name: "add",
			Desc: "Create a new habit",
			Func: func(c *ishell.Context) {
				var in service.HabitInput
				for {
					c.Print("Name: ")
					in.Name = strings.TrimSpace(c.ReadLine())
					if len(in.Name) > 0 {
						break
					}
					c.Println("Name cannot be empty.")
				}
				c.Print("Category (blank for none): ")
				in.Category = strings.TrimSpace(c.ReadLine())
				for {
					c.Print("Days (daily, weekdays, weekends or mon,wed,fri): ")
					freq, err := parseWeekdays(c.ReadLine())
					if err == nil {
						in.Frequency = freq
						break
					}
					c.Println(err.Error())
				}
				for {
					c.Print("Start time HH:MM (blank for none): ")
					in.StartTime = strings.TrimSpace(c.ReadLine())
					if in.StartTime == "" || utils.ValidateClock(in.StartTime) {
						break
					}
					c.Println("Time must look like 07:30.")
				}
				if in.StartTime != "" {
					for {
						c.Print("End time HH:MM (blank for none): ")
						in.EndTime = strings.TrimSpace(c.ReadLine())
						if in.EndTime == "" || utils.ValidateClock(in.EndTime) {
							break
						}
						c.Println("Time must look like 07:30.")
					}
				}
				c.Print("Weekly goal (blank for every scheduled day): ")
				if goal, err := strconv.Atoi(strings.TrimSpace(c.ReadLine())); err == nil {
					in.Goal = &goal
				}

				habit, err := client.CreateHabit(in)
				if handleError(err) {
					return
				}
				c.Printf("Created '%s'.\n", habit.Name)
			},
		},
		{
			Name: "rename",
			Desc: "Rename a habit: rename <n|id> <new name>",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 2 {
					c.Println("Usage: rename <n|id> <new name>")
					return
				}
				id, ok := habitID(c.Args[0])
				if !ok {
					return
				}
				name := strings.Join(c.Args[1:], " ")
				habit, err := client.UpdateHabit(id, service.HabitUpdate{Name: &name})
				if handleError(err) {
					return
				}
				c.Printf("Renamed to '%s'.\n", habit.Name)
			},
		},
		{
			Name: "toggle",
			Desc: "Cycle a habit's status: toggle <n|id> [YYYY-MM-DD]",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Println("Usage: toggle <n|id> [YYYY-MM-DD]")
					return
				}
				id, ok := habitID(c.Args[0])
				if !ok {
					return
				}
				result, err := client.Toggle(id, arg(c, 1))
				if handleError(err) {
					return
				}
				c.Printf("'%s' is now %s.\n", result.Habit.Name, result.Status)
			},
		},
		{
			Name: "status",
			Desc: "Set a habit's status: status <n|id> <completed|failed|none> [YYYY-MM-DD]",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 2 {
					c.Println("Usage: status <n|id> <completed|failed|none> [YYYY-MM-DD]")
					return
				}
				id, ok := habitID(c.Args[0])
				if !ok {
					return
				}
				status := models.DayStatus(strings.ToLower(c.Args[1]))
				if !status.Storable() {
					c.Println("Status must be completed, failed or none.")
					return
				}
				habit, err := client.SetStatus(id, arg(c, 2), status)
				if handleError(err) {
					return
				}
				c.Printf("'%s' marked %s.\n", habit.Name, status)
			},
		},
		{
			Name: "delete",
			Desc: "Delete a habit: delete <n|id>",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Println("Usage: delete <n|id>")
					return
				}
				id, ok := habitID(c.Args[0])
				if !ok {
					return
				}
				for {
					c.Print("Are you sure you want to delete this habit and its history? (yes/no): ")
					response := strings.ToLower(c.ReadLine())
					if response == "no" {
						return
					}
					if response == "yes" {
						break
					}
					c.Println("Invalid response. Please type 'yes' or 'no'.")
				}
				if handleError(client.DeleteHabit(id)) {
					return
				}
				lastHabits = nil
				c.Println("Habit deleted.")
			},
		},
		{
			Name: "journal",
			Desc: "Read a journal entry: journal [YYYY-MM-DD]",
			Func: func(c *ishell.Context) {
				entry, err := client.GetJournal(arg(c, 0))
				if handleError(err) {
					return
				}
				if entry.Content == "" {
					c.Printf("Nothing written for %s.\n", entry.Date)
					return
				}
				c.Printf("%s\n%s\n", entry.Date, entry.Content)
			},
		},
		{
			Name: "write",
			Desc: "Write a journal entry, replacing the old one: write [YYYY-MM-DD]",
			Func: func(c *ishell.Context) {
				c.Println("Type your entry. End it with a line containing only ';'.")
				content := c.ReadMultiLines(";")
				content = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(content), ";"))
				entry, err := client.SetJournal(arg(c, 0), content)
				if handleError(err) {
					return
				}
				c.Printf("Saved entry for %s.\n", entry.Date)
			},
		},
		{
			Name: "categories",
			Desc: "List your categories",
			Func: func(c *ishell.Context) {
				categories, err := client.ListCategories()
				if handleError(err) {
					return
				}
				if len(categories) == 0 {
					c.Println("No categories yet.")
					return
				}
				for _, category := range categories {
					c.Printf("  |-- %s %s\n", category.Name, category.Color)
				}
			},
		},
		{
			Name: "category-add",
			Desc: "Create a category: category-add <name> [color]",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Println("Usage: category-add <name> [color]")
					return
				}
				category, err := client.CreateCategory(c.Args[0], arg(c, 1))
				if handleError(err) {
					return
				}
				c.Printf("Created category '%s'.\n", category.Name)
			},
		},
		{
			Name: "migrate",
			Desc: "Create default categories and link uncategorized habits",
			Func: func(c *ishell.Context) {
				result, err := client.MigrateCategories()
				if handleError(err) {
					return
				}
				c.Println(result.Message)
			},
		},
		{
			Name: "version",
			Desc: "Show the version of your data",
			Func: func(c *ishell.Context) {
				version, err := client.Version()
				if handleError(err) {
					return
				}
				c.Printf("Data version %d.\n", version)
			},
		},
		{
			Name: "logout",
			Desc: "Sign out",
			Func: func(c *ishell.Context) {
				if err := client.SignOut(); err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println("You are now signed out.")
				switchTo(userCommands, guestCommands, false)
			},
		},
	}

	// Define common commands that are always available, regardless of login state
	commonCommands = []Command{
		{
			Name: "exit",
			Desc: "Exit the application",
			Func: func(c *ishell.Context) {
				fmt.Println("Goodbye!")
				os.Exit(0)
			},
		},
	}

	// The help command is created separately to avoid the cyclic dependency
	commonCommands = append(commonCommands, Command{
		Name: "help",
		Desc: "List available commands",
		Func: func(c *ishell.Context) {
			c.Println("Available commands:")
			if loggedIn {
				for _, command := range userCommands {
					c.Println("  |-- '" + command.Name + "' : " + command.Desc)
				}
			} else {
				for _, command := range guestCommands {
					c.Println("  |-- '" + command.Name + "' : " + command.Desc)
				}
			}
			for _, command := range commonCommands {
				c.Println("  |-- '" + command.Name + "' : " + command.Desc)
			}
			c.Println()
		},
	})
}

func signIn(c *ishell.Context, token string) {
	userID, err := client.SignIn(token)
	if err != nil {
		utils.PrintError(err.Error())
		return
	}
	c.Printf("Welcome %s, you are now signed in.\n", userID)
	switchTo(guestCommands, userCommands, true)
}

// switchTo swaps one command set for another.
func switchTo(from, to []Command, signedIn bool) {
	loggedIn = signedIn
	lastHabits = nil
	for _, command := range from {
		shell.DeleteCmd(command.Name)
	}
	addCommands(shell, to)
}

// handleError prints err and reports whether there was one. A rejected
// token signs the user out.
func handleError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		utils.PrintError("Session expired, please sign in again by typing 'login' in the terminal.")
		client.SignOut()
		switchTo(userCommands, guestCommands, false)
		return true
	}
	utils.PrintError(err.Error())
	return true
}

// habitID maps a row number of the last listing to a habit id. Anything
// else is taken to be an id.
func habitID(ref string) (string, bool) {
	n, err := strconv.Atoi(ref)
	if err != nil {
		return ref, true
	}
	if n < 1 || n > len(lastHabits) {
		utils.PrintError(fmt.Sprintf("no habit %d in the last listing, run 'habits' or 'week' first", n))
		return "", false
	}
	return lastHabits[n-1].ID.Hex(), true
}

func arg(c *ishell.Context, i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// addCommands is a helper function that adds the given commands to the shell.
func addCommands(shell *ishell.Shell, commands []Command) {
	for _, command := range commands {
		shell.AddCmd(&ishell.Cmd{
			Name: command.Name,
			Help: command.Desc,
			Func: command.Func,
		})
	}
}

// Execute is the main function that executes the shell.
// It welcomes the user, adds common commands and the commands matching the stored session, and runs the shell.
func Execute() {
	shell.Println()
	figure.NewFigure("Habitual", "basic", true).Print()
	shell.Println("Welcome to Habitual, the habit tracker and journal. Type 'help' to see a list of commands.")

	addCommands(shell, commonCommands)
	if client.IsUserAuthenticated() {
		loggedIn = true
		addCommands(shell, userCommands)
	} else {
		addCommands(shell, guestCommands)
	}

	shell.Run()
}
