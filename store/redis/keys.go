package redis

// Redis key naming conventions for recipeflow data.
// All keys are prefixed with "recipeflow:" to avoid collisions.

const keyPrefix = "recipeflow:"

// ── Recipe keys ──

// recipeKey returns the key for a recipe entity: recipeflow:recipe:{id}
func recipeKey(id string) string { return keyPrefix + "recipe:" + id }

// recipeIDsKey is the Set tracking all recipe IDs for enumeration.
const recipeIDsKey = keyPrefix + "recipe_ids"

// ── Schedule keys ──

// scheduleKey returns the key for a schedule entity: recipeflow:schedule:{id}
func scheduleKey(id string) string { return keyPrefix + "schedule:" + id }

// scheduleIDsKey is the Set tracking all schedule IDs for enumeration.
const scheduleIDsKey = keyPrefix + "schedule_ids"

// ── Execution keys ──

// executionKey returns the key for an execution entity: recipeflow:execution:{id}
func executionKey(id string) string { return keyPrefix + "execution:" + id }

// executionIDsKey is the Set tracking all execution IDs for enumeration.
const executionIDsKey = keyPrefix + "execution_ids"

// artifactsKey returns the List key for an execution's artifact trail:
// recipeflow:artifacts:{executionID}
func artifactsKey(executionID string) string { return keyPrefix + "artifacts:" + executionID }
