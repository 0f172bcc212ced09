package domain

// RawHit is one search result before deduplication: the same repository and
// workflow file can surface under several search query phrasings.
type RawHit struct {
	RepoFullName string
	RepoOwner    string
	RepoName     string
	WorkflowPath string
	WorkflowFile string
}

// NormalizeHits collapses an ordered sequence of raw search hits into one
// occurrence per key. The first hit for a key wins; later duplicates are
// dropped so repeated query variants cannot inflate the snapshot. An empty
// result is valid and means the action has no current users.
func NormalizeHits(hits []RawHit) map[Key]Occurrence {
	out := make(map[Key]Occurrence, len(hits))
	for _, hit := range hits {
		key := Key{RepoFullName: hit.RepoFullName, WorkflowPath: hit.WorkflowPath}
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = Occurrence{
			RepoFullName: hit.RepoFullName,
			RepoOwner:    hit.RepoOwner,
			RepoName:     hit.RepoName,
			WorkflowPath: hit.WorkflowPath,
			WorkflowFile: hit.WorkflowFile,
		}
	}
	return out
}
