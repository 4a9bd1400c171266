package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tgienger/taskmanager/internal/api"
	"github.com/tgienger/taskmanager/internal/client"
	"github.com/tgienger/taskmanager/internal/ui/keys"
	"github.com/tgienger/taskmanager/internal/ui/styles"
)

// TaskAPI is the remote task store as seen by the view. *client.Client implements it.
type TaskAPI interface {
	ListTasks(ctx context.Context) ([]api.TaskDTO, error)
	CreateTask(ctx context.Context, title string) (api.TaskDTO, error)
	UpdateTask(ctx context.Context, id int64, title string, isDone bool) (api.TaskDTO, error)
	DeleteTask(ctx context.Context, id int64) error
}

// State of the task list fetch
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateErrored:
		return "errored"
	default:
		return "idle"
	}
}

// ReconcileMode decides how a successful mutation reaches the local list.
type ReconcileMode int

const (
	// ReconcileRefetch reloads the whole list after every mutation.
	ReconcileRefetch ReconcileMode = iota
	// ReconcilePatch applies the returned task to the local list by id.
	ReconcilePatch
)

const (
	msgLoadFailed   = "Failed to load tasks"
	msgCreateFailed = "Failed to create task"
	msgUpdateFailed = "Failed to update task"
	msgDeleteFailed = "Failed to delete task"
	msgTitleMissing = "Title is required"
)

type action int

const (
	actionCreate action = iota
	actionToggle
	actionEdit
	actionDelete
)

// TaskListView shows every task and lets the user create, toggle, rename and delete them
type TaskListView struct {
	api    TaskAPI
	mode   ReconcileMode
	state  State
	tasks  []api.TaskDTO
	styles *styles.Styles
	keys   keys.KeyMap

	width  int
	height int

	cursor  int
	scrollY int
	spinner spinner.Model

	// Task creation. pendingCreate holds a failed title until the user is
	// free to see it again.
	creating      bool
	createInput   textinput.Model
	pendingCreate string

	// Inline title editing; drafts survive a failed save
	editing   bool
	editingID int64
	editInput textinput.Model
	drafts    map[int64]string

	// Delete confirmation
	confirmingDelete bool
	deleteTargetID   int64
	deleteTargetName string

	// Last failure, shown as a banner until dismissed
	errMsg string

	showHelpPopup bool
}

// NewTaskListView creates a new task list view
func NewTaskListView(taskAPI TaskAPI, mode ReconcileMode) *TaskListView {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(styles.Current.Accent)

	createInput := textinput.New()
	createInput.Placeholder = "What needs doing?"
	createInput.CharLimit = 200

	editInput := textinput.New()
	editInput.Placeholder = "Task title"
	editInput.CharLimit = 200

	return &TaskListView{
		api:         taskAPI,
		mode:        mode,
		state:       StateIdle,
		tasks:       []api.TaskDTO{},
		styles:      styles.NewStyles(),
		keys:        keys.DefaultKeyMap(),
		spinner:     sp,
		createInput: createInput,
		editInput:   editInput,
		drafts:      make(map[int64]string),
	}
}

// Init starts the first fetch
func (v *TaskListView) Init() tea.Cmd {
	return v.reload()
}

// State reports where the list fetch stands
func (v *TaskListView) State() State {
	return v.state
}

// Tasks returns the displayed list
func (v *TaskListView) Tasks() []api.TaskDTO {
	return v.tasks
}

// Err returns the banner text, empty when there is none
func (v *TaskListView) Err() string {
	return v.errMsg
}

type tasksLoadedMsg struct {
	tasks []api.TaskDTO
}

type tasksFailedMsg struct {
	err error
}

type taskCreatedMsg struct {
	task api.TaskDTO
}

type taskUpdatedMsg struct {
	task   api.TaskDTO
	action action
}

type taskDeletedMsg struct {
	id int64
}

type actionFailedMsg struct {
	action action
	err    error
	id     int64
	title  string
}

func (v *TaskListView) reload() tea.Cmd {
	load := v.loadTasks()
	if v.state == StateLoading {
		return load
	}
	v.state = StateLoading
	return tea.Batch(v.spinner.Tick, load)
}

func (v *TaskListView) loadTasks() tea.Cmd {
	taskAPI := v.api
	return func() tea.Msg {
		tasks, err := taskAPI.ListTasks(context.Background())
		if err != nil {
			return tasksFailedMsg{err: err}
		}
		return tasksLoadedMsg{tasks: tasks}
	}
}

func (v *TaskListView) createTask(title string) tea.Cmd {
	taskAPI := v.api
	return func() tea.Msg {
		task, err := taskAPI.CreateTask(context.Background(), title)
		if err != nil {
			return actionFailedMsg{action: actionCreate, err: err, title: title}
		}
		return taskCreatedMsg{task: task}
	}
}

func (v *TaskListView) updateTask(act action, id int64, title string, isDone bool) tea.Cmd {
	taskAPI := v.api
	return func() tea.Msg {
		task, err := taskAPI.UpdateTask(context.Background(), id, title, isDone)
		if err != nil {
			return actionFailedMsg{action: act, err: err, id: id, title: title}
		}
		return taskUpdatedMsg{task: task, action: act}
	}
}

func (v *TaskListView) deleteTask(id int64) tea.Cmd {
	taskAPI := v.api
	return func() tea.Msg {
		if err := taskAPI.DeleteTask(context.Background(), id); err != nil {
			return actionFailedMsg{action: actionDelete, err: err, id: id}
		}
		return taskDeletedMsg{id: id}
	}
}

// Update handles messages
func (v *TaskListView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		inputWidth := clamp(styles.ContentWidth(v.width)-12, 20, 60)
		v.createInput.Width = inputWidth
		v.editInput.Width = inputWidth
		return v, nil

	case spinner.TickMsg:
		if v.state != StateLoading {
			return v, nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd

	case tasksLoadedMsg:
		v.state = StateReady
		v.tasks = msg.tasks
		if v.tasks == nil {
			v.tasks = []api.TaskDTO{}
		}
		v.clampCursor()
		return v, nil

	case tasksFailedMsg:
		// The previous list stays on screen.
		v.state = StateErrored
		v.errMsg = client.UserMessage(msg.err, msgLoadFailed)
		return v, nil

	case taskCreatedMsg:
		if v.mode == ReconcileRefetch {
			return v, v.reload()
		}
		v.upsert(msg.task)
		return v, nil

	case taskUpdatedMsg:
		if msg.action == actionEdit {
			delete(v.drafts, msg.task.ID)
		}
		if v.mode == ReconcileRefetch {
			return v, v.reload()
		}
		v.replace(msg.task)
		return v, nil

	case taskDeletedMsg:
		v.remove(msg.id)
		delete(v.drafts, msg.id)
		if v.mode == ReconcileRefetch {
			return v, v.reload()
		}
		return v, nil

	case actionFailedMsg:
		return v, v.handleFailure(msg)

	case tea.KeyMsg:
		// Any key closes the help popup
		if v.showHelpPopup {
			v.showHelpPopup = false
			return v, nil
		}

		if v.confirmingDelete {
			return v.updateConfirmDelete(msg)
		}

		if v.creating {
			return v.updateCreating(msg)
		}

		if v.editing {
			return v.updateEditing(msg)
		}

		return v.updateNormal(msg)
	}

	// Cursor blink and other input internals
	var cmd tea.Cmd
	switch {
	case v.creating:
		v.createInput, cmd = v.createInput.Update(msg)
	case v.editing:
		v.editInput, cmd = v.editInput.Update(msg)
	}
	return v, cmd
}

func (v *TaskListView) handleFailure(msg actionFailedMsg) tea.Cmd {
	switch msg.action {
	case actionCreate:
		v.errMsg = client.UserMessage(msg.err, msgCreateFailed)
		return v.restoreCreate(msg.title)
	case actionDelete:
		v.errMsg = client.UserMessage(msg.err, msgDeleteFailed)
	default:
		v.errMsg = client.UserMessage(msg.err, msgUpdateFailed)
	}
	if client.IsUnreachable(msg.err) {
		return nil
	}
	// The server answered, so our copy may be stale.
	if v.mode == ReconcileRefetch {
		return v.reload()
	}
	return nil
}

// restoreCreate reopens the create form with title so nothing typed is lost.
// While another form owns the keyboard the title waits in pendingCreate.
func (v *TaskListView) restoreCreate(title string) tea.Cmd {
	if v.editing || v.confirmingDelete || (v.creating && v.createInput.Value() != "") {
		v.pendingCreate = title
		return nil
	}
	v.creating = true
	v.createInput.SetValue(title)
	v.createInput.CursorEnd()
	return v.createInput.Focus()
}

func (v *TaskListView) resumePendingCreate() tea.Cmd {
	if v.pendingCreate == "" {
		return nil
	}
	title := v.pendingCreate
	v.pendingCreate = ""
	return v.restoreCreate(title)
}

func (v *TaskListView) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit

	case v.errMsg != "" && key.Matches(msg, v.keys.Dismiss):
		v.errMsg = ""
		return v, nil

	case key.Matches(msg, v.keys.Retry):
		v.errMsg = ""
		return v, v.reload()

	case key.Matches(msg, v.keys.Up):
		if v.cursor > 0 {
			v.cursor--
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Down):
		if v.cursor < len(v.tasks)-1 {
			v.cursor++
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.New):
		v.creating = true
		v.createInput.Reset()
		return v, v.createInput.Focus()

	case key.Matches(msg, v.keys.Toggle):
		task, ok := v.selected()
		if !ok {
			return v, nil
		}
		return v, v.updateTask(actionToggle, task.ID, task.Title, !task.IsDone)

	case key.Matches(msg, v.keys.Edit):
		task, ok := v.selected()
		if !ok {
			return v, nil
		}
		v.startEditTask(task)
		return v, v.editInput.Focus()

	case key.Matches(msg, v.keys.Delete):
		task, ok := v.selected()
		if !ok {
			return v, nil
		}
		v.confirmingDelete = true
		v.deleteTargetID = task.ID
		v.deleteTargetName = task.Title
		return v, nil

	case key.Matches(msg, v.keys.Help):
		v.showHelpPopup = true
		return v, nil
	}

	return v, nil
}

func (v *TaskListView) updateCreating(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.creating = false
		v.createInput.Blur()
		v.createInput.Reset()
		return v, v.resumePendingCreate()

	case key.Matches(msg, v.keys.Enter):
		title := strings.TrimSpace(v.createInput.Value())
		if title == "" {
			v.errMsg = msgTitleMissing
			return v, nil
		}
		v.creating = false
		v.createInput.Blur()
		v.createInput.Reset()
		return v, tea.Batch(v.createTask(title), v.resumePendingCreate())
	}

	var cmd tea.Cmd
	v.createInput, cmd = v.createInput.Update(msg)
	return v, cmd
}

func (v *TaskListView) startEditTask(task api.TaskDTO) {
	v.editing = true
	v.editingID = task.ID
	draft, ok := v.drafts[task.ID]
	if !ok {
		draft = task.Title
	}
	v.drafts[task.ID] = draft
	v.editInput.SetValue(draft)
	v.editInput.CursorEnd()
}

func (v *TaskListView) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		delete(v.drafts, v.editingID)
		v.stopEditing()
		return v, v.resumePendingCreate()

	case key.Matches(msg, v.keys.Enter):
		draft := strings.TrimSpace(v.drafts[v.editingID])
		if draft == "" {
			v.errMsg = msgTitleMissing
			return v, nil
		}
		id := v.editingID
		isDone := false
		if task, ok := v.find(id); ok {
			isDone = task.IsDone
		}
		v.stopEditing()
		return v, tea.Batch(v.updateTask(actionEdit, id, draft, isDone), v.resumePendingCreate())
	}

	var cmd tea.Cmd
	v.editInput, cmd = v.editInput.Update(msg)
	v.drafts[v.editingID] = v.editInput.Value()
	return v, cmd
}

func (v *TaskListView) stopEditing() {
	v.editing = false
	v.editingID = 0
	v.editInput.Blur()
	v.editInput.Reset()
}

func (v *TaskListView) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Confirm):
		v.confirmingDelete = false
		return v, tea.Batch(v.deleteTask(v.deleteTargetID), v.resumePendingCreate())
	case key.Matches(msg, v.keys.Cancel):
		v.confirmingDelete = false
		v.deleteTargetID = 0
		v.deleteTargetName = ""
		return v, v.resumePendingCreate()
	}
	return v, nil
}

func (v *TaskListView) selected() (api.TaskDTO, bool) {
	if v.cursor < 0 || v.cursor >= len(v.tasks) {
		return api.TaskDTO{}, false
	}
	return v.tasks[v.cursor], true
}

func (v *TaskListView) find(id int64) (api.TaskDTO, bool) {
	for _, t := range v.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return api.TaskDTO{}, false
}

// upsert appends a created task, or replaces it if a refetch already brought it in.
func (v *TaskListView) upsert(task api.TaskDTO) {
	if v.replace(task) {
		return
	}
	v.tasks = append(v.tasks, task)
}

func (v *TaskListView) replace(task api.TaskDTO) bool {
	for i := range v.tasks {
		if v.tasks[i].ID == task.ID {
			v.tasks[i] = task
			return true
		}
	}
	return false
}

func (v *TaskListView) remove(id int64) {
	kept := make([]api.TaskDTO, 0, len(v.tasks))
	for _, t := range v.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	v.tasks = kept
	v.clampCursor()
}

func (v *TaskListView) clampCursor() {
	if v.cursor >= len(v.tasks) {
		v.cursor = max(0, len(v.tasks)-1)
	}
	v.ensureVisible()
}

func (v *TaskListView) visibleItems() int {
	return max(v.height-12, 1)
}

func (v *TaskListView) ensureVisible() {
	visible := v.visibleItems()
	if v.cursor < v.scrollY {
		v.scrollY = v.cursor
	} else if v.cursor >= v.scrollY+visible {
		v.scrollY = v.cursor - visible + 1
	}
}

// View renders the view
func (v *TaskListView) View() string {
	if v.showHelpPopup {
		return v.renderHelpPopup()
	}

	if v.confirmingDelete {
		return v.renderDeleteConfirm()
	}

	var b strings.Builder

	b.WriteString(v.renderHeader())
	b.WriteString("\n")

	if v.errMsg != "" {
		b.WriteString(v.renderBanner())
		b.WriteString("\n")
	}

	if v.creating {
		b.WriteString(v.styles.InputFocused.Render(v.createInput.View()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(v.renderTaskList())

	b.WriteString("\n")
	b.WriteString(v.renderHelp())

	return styles.CenterView(b.String(), v.width, v.height)
}

func (v *TaskListView) renderHeader() string {
	s := v.styles

	done := 0
	for _, t := range v.tasks {
		if t.IsDone {
			done++
		}
	}

	title := s.Title.Render("Tasks")
	count := s.TitleMuted.Render(fmt.Sprintf("%d/%d done", done, len(v.tasks)))

	status := ""
	switch v.state {
	case StateLoading:
		status = v.spinner.View() + s.TitleMuted.Render(" loading")
	case StateErrored:
		status = s.Error.Render("offline")
	}

	return s.TitleBar.Render(lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", count, "  ", status))
}

func (v *TaskListView) renderBanner() string {
	width := max(styles.ContentWidth(v.width)-4, 20)
	hint := v.styles.TitleMuted.Render("  x dismiss • r retry")
	return v.styles.Banner.Width(width).Render(v.errMsg + hint)
}

func (v *TaskListView) renderTaskList() string {
	s := v.styles

	if len(v.tasks) == 0 {
		switch v.state {
		case StateIdle, StateLoading:
			return s.TitleMuted.Render("Loading tasks...")
		case StateErrored:
			return s.TitleMuted.Render("Could not load tasks. Press 'r' to retry.")
		}
		return s.TitleMuted.Render("No tasks. Press 'n' to create one.")
	}

	var items []string
	endIdx := min(v.scrollY+v.visibleItems(), len(v.tasks))
	for i := v.scrollY; i < endIdx; i++ {
		items = append(items, v.renderTaskItem(v.tasks[i], i == v.cursor))
	}

	return lipgloss.JoinVertical(lipgloss.Left, items...)
}

func (v *TaskListView) renderTaskItem(task api.TaskDTO, selected bool) string {
	s := v.styles
	width := max(styles.ContentWidth(v.width)-4, 20)

	checkbox := "[ ]"
	if task.IsDone {
		checkbox = "[x]"
	}

	if v.editing && v.editingID == task.ID {
		return s.ListSelected.Width(width).Render(checkbox + " " + v.editInput.View())
	}

	title := task.Title
	if _, pending := v.drafts[task.ID]; pending {
		title += " *"
	}

	itemStyle := s.ListItem
	if selected {
		itemStyle = s.ListSelected
	}
	line := checkbox + " " + title
	if task.IsDone && !selected {
		line = s.TaskDone.Render(line)
	}
	return itemStyle.Width(width).Render(line)
}

func (v *TaskListView) renderHelp() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	switch {
	case v.creating:
		return s.Help.Render(fmt.Sprintf("%s create • %s cancel", s.HelpKey.Render("↵"), s.HelpKey.Render("esc")))
	case v.editing:
		return s.Help.Render(fmt.Sprintf("%s save • %s cancel", s.HelpKey.Render("↵"), s.HelpKey.Render("esc")))
	case contentWidth > 0 && contentWidth < 50:
		return s.Help.Render(s.HelpKey.Render("?") + " help")
	}

	return s.Help.Render(
		fmt.Sprintf("%s done • %s new • %s edit • %s del • %s reload • %s quit",
			s.HelpKey.Render("space"),
			s.HelpKey.Render("n"),
			s.HelpKey.Render("e"),
			s.HelpKey.Render("d"),
			s.HelpKey.Render("r"),
			s.HelpKey.Render("q"),
		),
	)
}

func (v *TaskListView) renderHelpPopup() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	helpItems := []string{
		s.HelpKey.Render("space") + "  toggle done",
		s.HelpKey.Render("n") + "      new task",
		s.HelpKey.Render("e") + "      edit title",
		s.HelpKey.Render("d") + "      delete task",
		s.HelpKey.Render("r") + "      reload",
		s.HelpKey.Render("x") + "      dismiss error",
		s.HelpKey.Render("q") + "      quit",
		"",
		s.TitleMuted.Render("Press any key to close"),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{s.Title.Render("Keyboard Shortcuts"), ""}, helpItems...)...,
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		s.Popup.Render(content),
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *TaskListView) renderDeleteConfirm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	content := lipgloss.JoinVertical(lipgloss.Center,
		s.Title.Foreground(styles.Current.Error).Render("Delete Task?"),
		"",
		s.TitleMuted.Render(fmt.Sprintf("%q will be removed.", v.deleteTargetName)),
		"",
		lipgloss.JoinHorizontal(lipgloss.Center,
			s.ButtonPrimary.Render(" Y - Yes "),
			"  ",
			s.Button.Render(" N - No "),
		),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		content,
	)
	return styles.CenterView(centered, v.width, v.height)
}

// clamp returns val clamped between minVal and maxVal
func clamp(val, minVal, maxVal int) int {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
