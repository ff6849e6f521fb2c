package realtime

import "github.com/BroadApps-official/App-056/internal/models"

// Event payloads

func ProjectPayload(p models.Project) map[string]interface{} {
	return map[string]interface{}{
		"project_id": p.ID,
		"category":   string(p.Category),
		"image":      p.ImageURL,
		"date":       p.Date,
		"is_loading": p.IsLoading,
		"is_failed":  p.IsFailed,
	}
}

func ProjectDeletedPayload(projectID string) map[string]interface{} {
	return map[string]interface{}{
		"project_id": projectID,
	}
}

func ProjectFailedPayload(projectID, reason string) map[string]interface{} {
	return map[string]interface{}{
		"project_id": projectID,
		"status":     "failed",
		"error":      reason,
	}
}

func GenerationCompletedPayload(job models.JobView) map[string]interface{} {
	return map[string]interface{}{
		"job_id":     job.JobID,
		"project_id": job.JobID,
		"status":     string(job.State),
		"result_url": job.ResultURL,
		"category":   string(job.Category),
	}
}

func GenerationFailedPayload(job models.JobView) map[string]interface{} {
	return map[string]interface{}{
		"job_id": job.JobID,
		"status": string(job.State),
		"error":  job.Error,
	}
}

func NotifyAvailablePayload(jobID string) map[string]interface{} {
	return map[string]interface{}{
		"job_id": jobID,
	}
}

func NotificationPayload(jobID, title, body string) map[string]interface{} {
	return map[string]interface{}{
		"job_id": jobID,
		"title":  title,
		"body":   body,
	}
}

func AvatarReadyPayload(a models.Avatar) map[string]interface{} {
	payload := map[string]interface{}{
		"avatar_id": a.ID,
		"gender":    a.Gender,
	}
	if a.Preview != nil {
		payload["preview"] = *a.Preview
	}
	return payload
}

func SubscriptionChangedPayload(entitled bool) map[string]interface{} {
	return map[string]interface{}{
		"entitled": entitled,
	}
}
