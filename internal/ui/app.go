package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/tgienger/taskmanager/internal/ui/views"
)

type App struct {
	taskList *views.TaskListView
	logger   *zap.Logger
	width    int
	height   int
}

// Creates a new application over the task API
func NewApp(taskAPI views.TaskAPI, mode views.ReconcileMode, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		taskList: views.NewTaskListView(taskAPI, mode),
		logger:   logger,
	}
}

func (a *App) Init() tea.Cmd {
	a.logger.Debug("Loading task list")
	return a.taskList.Init()
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
	}

	prev := a.taskList.Err()
	_, cmd := a.taskList.Update(msg)
	if err := a.taskList.Err(); err != "" && err != prev {
		a.logger.Warn("Task action failed",
			zap.String("message", err),
			zap.Stringer("state", a.taskList.State()),
		)
	}
	return a, cmd
}

func (a *App) View() string {
	return a.taskList.View()
}
