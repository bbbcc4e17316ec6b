package content

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/model"
)

// Content store keys are deterministic:
// campaigns/{campaignID}/context/{partition}/{id}.json for structured fields
// and campaigns/{campaignID}/context/{partition}/conversation/{id}.json for
// conversational context.

func objectKey(campaignID uuid.UUID, partition model.Partition, id string, conversational bool) string {
	if conversational {
		return fmt.Sprintf("campaigns/%s/context/%s/conversation/%s.json", campaignID, partition, id)
	}
	return fmt.Sprintf("campaigns/%s/context/%s/%s.json", campaignID, partition, id)
}

func partitionPrefix(campaignID uuid.UUID, partition model.Partition) string {
	return fmt.Sprintf("campaigns/%s/context/%s/", campaignID, partition)
}

// swapPartition rewrites a key from one partition to another, keeping the id
// and the conversation namespace intact
func swapPartition(key string, from model.Partition, to model.Partition) (string, error) {
	fromSegment := fmt.Sprintf("/context/%s/", from)
	if !strings.Contains(key, fromSegment) {
		return "", fmt.Errorf("key %q is not in the %s partition", key, from)
	}
	return strings.Replace(key, fromSegment, fmt.Sprintf("/context/%s/", to), 1), nil
}
