/*
Copyright 2025 Driftcap Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package driftcap

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/driftcap/driftcap/config"
	"github.com/driftcap/driftcap/model"
)

// errNotReady signals that a dependency is claimed by another worker; the
// dependent task reverts to INITIAL and retries next cycle.
type errNotReady struct {
	taskID string
}

func (e errNotReady) Error() string {
	return fmt.Sprintf("task %s is executing elsewhere", e.taskID)
}

// ExecuteTasks is one execution cycle: claim INITIAL tasks one at a time and
// run each once its parent chain and cross-model dependencies are finished.
// Unfinished dependencies are rescued recursively, bounded by the configured
// dependency depth; a task whose dependencies are claimed by another worker
// reverts to INITIAL instead of blocking the loop.
func (d *Driftcap) ExecuteTasks(ctx context.Context) error {
	ctx, span := otel.Tracer("driftcap.executor").Start(ctx, "Executing scheduled tasks")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}
	tasks, err := d.datasource.GetInitialTasks(ctx, d.tenantID, cnf.Worker.BatchSize)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		locked, err := d.datasource.LockTask(ctx, task.TaskID)
		if err != nil {
			return err
		}
		if !locked {
			continue
		}
		if err := d.executeLockedTask(ctx, task, cnf.Worker.MaxDependencyDepth, cnf.Worker.ResultMaxLength); err != nil {
			logrus.Errorf("execution failed for task %s (%s/%s): %v", task.TaskID, task.ModelName, task.ObjectID, err)
		}
	}
	return nil
}

func (d *Driftcap) executeLockedTask(ctx context.Context, task *model.ScheduledTask, depth, resultMax int) error {
	ready, err := d.dependenciesFinished(ctx, task, depth)
	if err != nil {
		if _, notReady := err.(errNotReady); notReady {
			return d.datasource.RevertTask(ctx, task.TaskID)
		}
		result := model.TruncateError(err, resultMax)
		return d.datasource.ArchiveTask(ctx, task, model.StatusFail, result)
	}
	if !ready {
		return d.datasource.RevertTask(ctx, task.TaskID)
	}

	if err := d.invoke(ctx, task); err != nil {
		result := model.TruncateError(err, resultMax)
		return d.datasource.ArchiveTask(ctx, task, model.StatusFail, result)
	}
	return d.datasource.ArchiveTask(ctx, task, model.StatusSuccess, "")
}

// dependenciesFinished checks the parent chain and cross-model dependencies.
// A parent still INITIAL is rescued in place: locked, executed and finished
// before the check continues. depth bounds the rescue recursion; running out
// of depth means the dependency graph is deeper than operators configured,
// which is treated as a suspected cycle.
func (d *Driftcap) dependenciesFinished(ctx context.Context, task *model.ScheduledTask, depth int) (bool, error) {
	if depth <= 0 {
		return false, fmt.Errorf("dependency depth limit reached at task %s: suspected cycle in dependency graph", task.TaskID)
	}

	parentIDs := append([]string(nil), task.ParentTaskIDs...)
	sort.Strings(parentIDs)
	for _, parentID := range parentIDs {
		finished, err := d.ensureTaskFinished(ctx, parentID, depth)
		if err != nil {
			return false, err
		}
		if !finished {
			return false, nil
		}
	}

	for _, dep := range task.DependsOn {
		depTasks, err := d.datasource.GetTasksByDependency(ctx, task.RequestID, dep.ModelName, dep.ObjectID)
		if err != nil {
			return false, err
		}
		for _, depTask := range depTasks {
			finished, err := d.ensureTaskFinished(ctx, depTask.TaskID, depth)
			if err != nil {
				return false, err
			}
			if !finished {
				return false, nil
			}
		}
	}
	return true, nil
}

// ensureTaskFinished resolves one dependency: absent from the active table
// means already archived (finished); INITIAL is rescued by recursive
// execution; EXECUTING belongs to another worker and is reported via
// errNotReady. A rescue whose invocation fails archives the dependency FAIL,
// which still leaves it finished.
func (d *Driftcap) ensureTaskFinished(ctx context.Context, taskID string, depth int) (bool, error) {
	task, err := d.datasource.GetActiveTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task == nil {
		return true, nil
	}
	if task.Status == model.StatusExecuting {
		return false, errNotReady{taskID: taskID}
	}

	locked, err := d.datasource.LockTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	if !locked {
		return false, errNotReady{taskID: taskID}
	}

	ready, err := d.dependenciesFinished(ctx, task, depth-1)
	if err != nil {
		if _, notReady := err.(errNotReady); notReady {
			if revertErr := d.datasource.RevertTask(ctx, taskID); revertErr != nil {
				return false, revertErr
			}
		}
		return false, err
	}
	if !ready {
		if err := d.datasource.RevertTask(ctx, taskID); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := d.invoke(ctx, task); err != nil {
		cnf, cnfErr := config.Fetch()
		resultMax := 2048
		if cnfErr == nil {
			resultMax = cnf.Worker.ResultMaxLength
		}
		if archiveErr := d.datasource.ArchiveTask(ctx, task, model.StatusFail, model.TruncateError(err, resultMax)); archiveErr != nil {
			return false, archiveErr
		}
		// The dependency is archived now, the same terminal state it would
		// hold had it failed in an earlier cycle, so the dependent proceeds.
		logrus.Warnf("dependency task %s failed during rescue: %v", taskID, err)
		return true, nil
	}
	if err := d.datasource.ArchiveTask(ctx, task, model.StatusSuccess, ""); err != nil {
		return false, err
	}
	return true, nil
}

// invoke calls the execution collaborator with the shape matching the task
// kind.
func (d *Driftcap) invoke(ctx context.Context, task *model.ScheduledTask) error {
	start := time.Now()
	var err error
	switch task.Kind {
	case model.TaskKindPipeline:
		err = d.runner.RunPipeline(ctx, task.TargetCode, task.Content, task.TenantID, task.PipelineID)
	default:
		err = d.runner.Run(ctx, task.TargetCode, task.Content, task.TenantID)
	}
	if err == nil {
		logrus.Infof("task %s (%s) completed in %s", task.TaskID, task.TargetCode, time.Since(start))
	}
	return err
}
