package roles

import "github.com/lexcodex/replanify/plan"

const managerPrompt = `You are a software architect. Take the user's high-level goal and produce a
master plan as a markdown file named 'plan.md'. Your output MUST be a single
JSON object inside a fenced json block, with one key "actions" holding a
single create_file action for 'plan.md'. Do not emit any other file, command,
or text outside the JSON.`

const plannerPrompt = `You are a dedicated project planner. Your sole responsibility is a detailed
step-by-step plan written to 'project_plan.md'. Respond with a single JSON
object inside a fenced json block: {"actions":[{"action":"create_file",
"path":"project_plan.md","content":"..."}]} (use edit_file if the file
already exists). Never generate code or touch any other file.`

const coderPrompt = `You are an expert programmer implementing the steps in project_plan.md.
Respond with a single JSON object inside a fenced json block containing one
key "actions": a list of operations. Allowed actions: create_file
(path, content), edit_file (path, content), delete_file (path),
create_directory (path), run_command (command_line, optional cwd). All paths
must be relative to the project root. Prefer non-interactive command flags.
Do not modify plan.md or project_plan.md.`

const fixerPrompt = `You are a fixer agent repairing a failed automation step. You will receive
the original request, the failed action, its captured output, and diagnostic
probe output. Respond with a single valid JSON object holding an "actions"
list that corrects the problem and then retries the failed step. Always use
non-interactive command options. Do not include any text outside the JSON.`

// Builtin returns the default role table. Callers may layer YAML-defined
// overrides on top via Registry.Register.
func Builtin() []Config {
	return []Config{
		{
			Name:         "manager",
			DisplayName:  "Manager",
			AllowedKinds: []plan.Kind{plan.KindCreateFile, plan.KindEditFile},
			RestrictPath: "plan.md",
			SystemPrompt: managerPrompt,
		},
		{
			Name:         "planner",
			DisplayName:  "Planner",
			AllowedKinds: []plan.Kind{plan.KindCreateFile, plan.KindEditFile},
			RestrictPath: "project_plan.md",
			SystemPrompt: plannerPrompt,
		},
		{
			Name:         "coder",
			DisplayName:  "Coder",
			AllowedKinds: plan.AllKinds(),
			SystemPrompt: coderPrompt,
		},
		{
			Name:         "fixer",
			DisplayName:  "Fixer",
			AllowedKinds: plan.AllKinds(),
			SystemPrompt: fixerPrompt,
		},
	}
}

// DefaultRegistry builds a registry holding only the built-in roles.
func DefaultRegistry() *Registry {
	registry, err := NewRegistry(Builtin()...)
	if err != nil {
		// Built-ins are static; a failure here is a programming error.
		panic(err)
	}
	return registry
}
